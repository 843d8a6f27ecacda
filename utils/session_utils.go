package utils

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"
)

var randRead = rand.Read

// GenerateSessionID derives an opaque session identifier from the visitor's
// user agent, client address and the current time. Eight random bytes are
// mixed in so two starts from the same client within one clock tick still
// get distinct identifiers. If the random source fails the identifier is
// derived from the visit attributes alone.
func GenerateSessionID(userAgent, clientAddress string, now time.Time) string {
	var nonce [8]byte
	if _, err := randRead(nonce[:]); err != nil {
		slog.Error("failed to generate random bytes for session ID", "error", err)
		nonce = [8]byte{}
	}

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(now.UnixNano()))

	h, _ := blake2b.New256(nil)
	h.Write([]byte(userAgent))
	h.Write([]byte{0})
	h.Write([]byte(clientAddress))
	h.Write([]byte{0})
	h.Write(ts[:])
	h.Write(nonce[:])
	return hex.EncodeToString(h.Sum(nil))
}
