package event

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"

	"github.com/denisbrodbeck/machineid"
)

var distinctId string

const (
	hashKey    = "websess"
	fallbackId = "unknown"
)

func getDistinctId() string {
	if id, err := machineid.ProtectedID(hashKey); err == nil {
		return id
	}
	if macAddr, err := getMacAddr(); err == nil {
		return hashString(macAddr)
	}
	return fallbackId
}

func getMacAddr() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 && len(iface.HardwareAddr) > 0 {
			if addrs, err := iface.Addrs(); err == nil && len(addrs) > 0 {
				return iface.HardwareAddr.String(), nil
			}
		}
	}
	return "", net.ErrClosed
}

func hashString(s string) string {
	mac := hmac.New(sha256.New, []byte(hashKey))
	mac.Write([]byte(s))
	return hex.EncodeToString(mac.Sum(nil))
}
