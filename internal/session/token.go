package session

import (
	"time"
)

// Token is the bearer credential presented on every authenticated request.
// Tokens are immutable; renewal replaces the whole value.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	CreatedAt   int64  `json:"created_at"` // unix milliseconds
}

// NewToken returns a token issued at now with a lifetime of expiresIn seconds.
func NewToken(accessToken string, expiresIn int, now time.Time) *Token {
	return &Token{
		AccessToken: accessToken,
		ExpiresIn:   expiresIn,
		CreatedAt:   now.UnixMilli(),
	}
}

// TimeLeft returns how much of the token's lifetime remains at now. The
// result is negative once the token has expired.
func (t *Token) TimeLeft(now time.Time) time.Duration {
	expiry := time.UnixMilli(t.CreatedAt).Add(time.Duration(t.ExpiresIn) * time.Second)
	return expiry.Sub(now)
}

// NearExpiry reports whether the token should be renewed: less than 1.5
// check intervals of lifetime left, so renewal always lands before the next
// tick would find the token expired.
func (t *Token) NearExpiry(interval time.Duration, now time.Time) bool {
	return t.TimeLeft(now) < interval*3/2
}

// FarFromExpiry reports whether more than two check intervals remain. Only
// then is a server status probe worth issuing; closer to expiry the renewal
// path takes over anyway.
func (t *Token) FarFromExpiry(interval time.Duration, now time.Time) bool {
	return t.TimeLeft(now) > 2*interval
}
