// Package keygen produces the random tokens that identify and authenticate
// write keys.
//
// Key tokens are credentials, so randomness comes from crypto/rand and bytes
// are drawn with rejection sampling to keep the base62 distribution uniform.
package keygen

import (
	cryptorand "crypto/rand"
	"fmt"
	"strings"
	"sync"
)

const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var (
	charsetLen = len(charset)
	// Bytes at or above this value are discarded so every character is
	// equally likely.
	unbiasedMaxVal = byte((256 / charsetLen) * charsetLen)
)

// DefaultLength is the random part length of a key token.
const DefaultLength = 32

// Token type prefixes.
const (
	TypeKey    = "key"
	TypeServer = "s2s"
	TypeJS     = "js"
)

// Generator produces random ids of a given length.
type Generator interface {
	RandomID(n int) string
}

// Random is the production Generator.
type Random struct{}

// RandomID implements Generator.
func (Random) RandomID(n int) string {
	return RandomID(n)
}

// RandomID returns n base62 characters read from crypto/rand.
// Panics if the system randomness source fails.
func RandomID(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := cryptorand.Read(buf); err != nil {
			panic(fmt.Sprintf("keygen: crypto/rand failed: %v", err))
		}
		for _, b := range buf {
			if b >= unbiasedMaxVal {
				continue
			}
			out = append(out, charset[int(b)%charsetLen])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}

// Token builds a key token: type + "." + projectID + "." + random.
func Token(gen Generator, tokenType, projectID string, n int) string {
	return strings.Join([]string{tokenType, projectID, gen.RandomID(n)}, ".")
}

// Sequence is a deterministic Generator for tests and scenarios.
// The i-th call returns the prefix followed by i, left-padded with zeros to
// the requested length when it fits.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequence creates a deterministic generator. An empty prefix defaults to "id".
func NewSequence(prefix string) *Sequence {
	if prefix == "" {
		prefix = "id"
	}
	return &Sequence{prefix: prefix}
}

// RandomID implements Generator.
func (s *Sequence) RandomID(n int) string {
	s.mu.Lock()
	s.n++
	seq := s.n
	s.mu.Unlock()

	id := fmt.Sprintf("%s%d", s.prefix, seq)
	if pad := n - len(id); pad > 0 {
		id = s.prefix + strings.Repeat("0", pad) + fmt.Sprintf("%d", seq)
	}
	return id
}

// Next returns the next id without padding. It satisfies remote.IDFunc.
func (s *Sequence) Next() string {
	return s.RandomID(0)
}
