// Package slug produces the short identifiers used in tracking URLs.
package slug

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Alphabet is the URL-safe base64 alphabet. Its 64 symbols divide 256
// evenly, so mapping a random byte with b%64 keeps the distribution uniform.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// DefaultLength gives 64^6 (~6.9e10) possible slugs
const DefaultLength = 6

// Generator draws fixed-length random slugs from crypto/rand.
// It does not check uniqueness; the store rejects duplicates and the
// tracker service retries with a fresh slug.
type Generator struct {
	length int
	random io.Reader
}

// NewGenerator creates a generator; a non-positive length falls back to DefaultLength
func NewGenerator(length int) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	return &Generator{length: length, random: rand.Reader}
}

// Length returns the number of characters in generated slugs
func (g *Generator) Length() int {
	return g.length
}

// Generate returns a new random slug
func (g *Generator) Generate() (string, error) {
	buf := make([]byte, g.length)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	for i, b := range buf {
		buf[i] = Alphabet[b%byte(len(Alphabet))]
	}

	return string(buf), nil
}
