// Package page extracts the session payload a server embeds in the app
// shell HTML. The payload is a base64 JSON blob carried by a well-known
// element, handed to the client exactly once on page load.
package page

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

const (
	payloadSelector = "#session-data"

	// Server templates render an empty placeholder when no session exists.
	// Anything shorter than this cannot be a real payload.
	minPayloadLen = 20
)

// ErrNoPayload means the document carries no usable session payload.
var ErrNoPayload = errors.New("page: no embedded session payload")

// Payload is the bootstrap blob embedded by the server.
type Payload struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// Extract reads and decodes the embedded payload, removing the carrier
// element from the document so it cannot be read twice.
func Extract(doc *goquery.Document) (*Payload, error) {
	sel := doc.Find(payloadSelector)
	if sel.Length() == 0 {
		return nil, ErrNoPayload
	}

	raw := strings.TrimSpace(sel.Text())
	sel.Remove()

	if len(raw) < minPayloadLen {
		return nil, ErrNoPayload
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("page: failed to decode session payload: %w", err)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("page: malformed session payload: %w", err)
	}
	if p.Token == "" {
		return nil, fmt.Errorf("page: session payload carries no token")
	}
	return &p, nil
}

// Source hands out the embedded payload at most once.
type Source struct {
	mu   sync.Mutex
	doc  *goquery.Document
	used bool
}

// NewSource parses the app shell HTML from r.
func NewSource(r io.Reader) (*Source, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("page: failed to parse document: %w", err)
	}
	return &Source{doc: doc}, nil
}

// Take returns the embedded payload on the first call and [ErrNoPayload]
// afterwards.
func (s *Source) Take() (*Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used {
		return nil, ErrNoPayload
	}
	s.used = true
	return Extract(s.doc)
}
