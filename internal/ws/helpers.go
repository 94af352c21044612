package ws

import (
	"crypto/rand"
	"encoding/hex"
)

// newConnID labels a portal UI socket so its log lines and published ws
// events can be correlated for the lifetime of the connection.
func newConnID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "portal-conn-unknown"
	}
	return "portal-conn-" + hex.EncodeToString(buf)
}
