// Package searchtoken derives a keyword index from plaintext so that
// encrypted free-text fields stay searchable without storing the plaintext.
//
// Leakage: the token string is stored unencrypted next to the ciphertext.
// Anyone who can read the detail_tokens column learns the coarse vocabulary
// of a secret's details (which words occur, lower-cased, deduplicated, with
// punctuation and 1-character fragments removed). Word order, punctuation
// and repetition are not recoverable, and the password field is never
// tokenized. This is an accepted trade-off that buys full-text search over
// details; removing it means removing search, and storing plaintext instead
// is not an option.
package searchtoken

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinTokenLength is the shortest token kept, in runes.
const MinTokenLength = 2

// Tokens normalizes s and returns its unique tokens in first-seen order.
// Letters and decimal digits are kept, whitespace separates tokens, and
// every other rune acts as a separator.
func Tokens(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return r
		default:
			return ' '
		}
	}, s)

	seen := make(map[string]struct{})
	var out []string
	for _, tok := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(tok) < MinTokenLength {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Join returns the token string stored alongside the ciphertext: the unique
// tokens of s joined by single spaces, or "" when nothing survives.
func Join(s string) string {
	return strings.Join(Tokens(s), " ")
}
