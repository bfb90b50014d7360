// Package joincode generates and validates the short codes students type to
// join a live session. Codes are 6 characters from a 31-symbol alphabet that
// excludes visually ambiguous glyphs (0/O, 1/I/L).
package joincode

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Alphabet is the full set of legal join-code characters.
const Alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// Length is the fixed join-code length.
const Length = 6

var alphabetSize = big.NewInt(int64(len(Alphabet)))

// Generate returns a random join code. Uniqueness among live sessions is the
// session store's responsibility, not ours.
func Generate() string {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken,
			// at which point nothing else in the process works either.
			panic(err)
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String()
}

// IsValidFormat checks length and alphabet membership only. It says nothing
// about whether a session with this code exists.
func IsValidFormat(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
