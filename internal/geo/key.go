// Package geo loads the DIVIPOLA department and municipality reference
// and resolves bulletin city names against it.
package geo

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Older bulletins ship Latin-1 text re-encoded as UTF-8. The replacer
// repairs the sequences that actually occur in the corpus; argument
// order matters, longer sequences first.
var encodingFixes = strings.NewReplacer(
	"Medell¡n", "Medellín",
	"BogotÃ¡", "Bogotá",
	"Ã¡", "á",
	"Ã©", "é",
	"Ã­", "í",
	"Ã³", "ó",
	"Ãº", "ú",
	"Ã±", "ñ",
	"¡", "í",
	"¢", "ó",
	"£", "ú",
)

var keyStrip = regexp.MustCompile(`[^\pL\pN\s-]`)

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FixEncoding repairs known mojibake in text from the bulletins.
func FixEncoding(text string) string {
	return encodingFixes.Replace(text)
}

// Key folds text into a comparison key: encoding repaired, diacritics
// stripped, lowercased, punctuation dropped, whitespace collapsed.
// "Bogotá, D.C." and "BOGOTA D.C" fold to the same key.
func Key(text string) string {
	s := FixEncoding(text)
	if folded, _, err := transform.String(foldAccents, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)
	s = keyStrip.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}
