// Package idgen generates identifiers for pages, listeners and removal
// reports.
package idgen

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// NanoID returns a Generator of base-36 IDs of the given length.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// UUIDv7 returns a Generator of time-sortable RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

var (
	// Default generates removal report IDs.
	Default Generator = UUIDv7()

	page     = Prefixed("pg_", NanoID(10))
	listener = Prefixed("lst_", NanoID(10))
)

// New produces an ID using the Default generator.
func New() string { return Default() }

// Page returns a short page (document context) identifier.
func Page() string { return page() }

// Listener returns a short notification listener identifier.
func Listener() string { return listener() }
