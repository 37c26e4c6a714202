package speech

import (
	"strings"
	"unicode/utf8"
)

// DefaultSayAs is the interpretation hint used when none is configured.
const DefaultSayAs = "verbatim"

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	// hyphens are read aloud as "dash", the minus sign is not
	"-", "−",
)

// SSML wraps text in a say-as element with the given interpretation hint.
func SSML(text, sayAs string) string {
	if sayAs == "" {
		sayAs = DefaultSayAs
	}
	return `<speak> <say-as interpret-as="` + sayAs + `">` + ssmlEscaper.Replace(text) + `</say-as> </speak>`
}

// BilledCharacters returns the number of characters the provider charges
// for ssml, which is every character of the document.
func BilledCharacters(ssml string) int {
	return utf8.RuneCountInString(ssml)
}
