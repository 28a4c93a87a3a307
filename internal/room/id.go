package room

import (
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"net/url"
	"strings"
)

const (
	// CodeLength is the number of characters in a room code.
	CodeLength = 6

	// Characters accepted by Parse.
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// Characters used by Generate. Ambiguous glyphs (I, O, 0, 1) are left out
	// so codes read aloud or copied by hand survive the trip.
	generatorAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// ID is a human-enterable room code, e.g. "ABC123".
//
// The zero value is not a valid code. A non-zero ID can only be obtained
// from Parse or Generate, so holding one means it has been validated.
type ID struct {
	code string
}

// Parse validates raw as a room code.
// It returns false, and the zero ID, for anything that is not exactly
// CodeLength characters of [A-Z0-9]. No normalization is applied.
func Parse(raw string) (ID, bool) {
	if len(raw) != CodeLength {
		return ID{}, false
	}
	for i := 0; i < len(raw); i++ {
		if strings.IndexByte(alphabet, raw[i]) < 0 {
			return ID{}, false
		}
	}
	return ID{code: raw}, true
}

// Generate returns a fresh random room code.
func Generate() ID {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(generatorAlphabet[randomIndex(len(generatorAlphabet))])
	}
	return ID{code: b.String()}
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		log.Panic("Failed to generate random index:", err)
	}
	return int(n.Int64())
}

// String returns the raw code.
func (id ID) String() string {
	return id.code
}

// IsZero reports whether id is the zero (invalid) ID.
func (id ID) IsZero() bool {
	return id.code == ""
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.code), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*id = ID{}
		return nil
	}
	parsed, ok := Parse(string(text))
	if !ok {
		return fmt.Errorf("invalid room code %q", string(text))
	}
	*id = parsed
	return nil
}

// Normalize turns user input into a candidate code for Parse.
// It accepts a bare code in any case, or a share link whose path
// contains /r/<code>. The result is not validated.
func Normalize(input string) string {
	input = strings.TrimSpace(input)

	if strings.Contains(input, "://") || strings.Contains(input, "/") {
		if code, ok := codeFromLink(input); ok {
			input = code
		}
	}

	return strings.ToUpper(input)
}

func codeFromLink(link string) (string, bool) {
	parsedURL, err := url.Parse(link)
	if err != nil {
		return "", false
	}

	path := strings.TrimSuffix(parsedURL.Path, "/")
	parts := strings.Split(path, "/")

	for i, part := range parts {
		if part == "r" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], true
		}
	}

	return "", false
}
