package models

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Slugify lowercases s and joins its words with '-'. CamelCase boundaries and
// letter/digit boundaries start a new word; any other punctuation is a separator.
// Letters without case, such as CJK, are kept as they are. A name with no
// letters or digits at all gets a stable "x-<hash>" slug.
func Slugify(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if slug := slugWords(s); slug != "" {
		return slug
	}
	return "x-" + strconv.FormatUint(xxhash.Sum64String(s), 36)
}

func slugWords(s string) string {

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	lastSep := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if (unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower) && !lastSep {
					b.WriteByte('-')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastSep = false

		case unicode.IsLower(r):
			b.WriteRune(r)
			lastSep = false

		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToLower(r))
			lastSep = false

		case unicode.IsDigit(r):
			if b.Len() > 0 && !unicode.IsDigit(runes[i-1]) && !lastSep {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			lastSep = false

		default:
			if !lastSep && b.Len() > 0 {
				b.WriteByte('-')
				lastSep = true
			}
		}
	}

	return strings.Trim(b.String(), "-")
}

// NormalizeUsername trims and lowercases a username.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeHandle(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}
