// Package collation implements the Unicode collation protocol that firmware
// file systems use for case-insensitive names and FAT 8.3 conversion.
package collation

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/language"
)

// ProtocolGUID identifies the Unicode collation protocol (version 2).
var ProtocolGUID = uuid.MustParse("a4c751fc-23ae-4c3e-92e9-4964cf63f349")

// Protocol is the collation interface units locate through boot services.
type Protocol interface {
	// StriColl compares case-insensitively: <0, 0 or >0.
	StriColl(a, b string) int
	// MetaiMatch reports whether s matches pattern case-insensitively.
	// Patterns support '*', '?', '[abc]' and '[a-z]'.
	MetaiMatch(s, pattern string) bool
	StrLwr(s string) string
	StrUpr(s string) string
	// FatToStr decodes an OEM (code page 437) FAT name. Decoding stops at
	// the first NUL.
	FatToStr(fat []byte) string
	// StrToFat encodes s as an upper-case FAT name of at most size bytes.
	// Spaces and dots are dropped. It reports true if any character had to
	// be replaced by '_'.
	StrToFat(s string, size int) ([]byte, bool)
	SupportedLanguages() string
}

// Collator implements Protocol with golang.org/x/text.
type Collator struct {
	tag   language.Tag
	coll  *collate.Collator
	lower cases.Caser
	upper cases.Caser
	fold  cases.Caser
}

// Option configures a Collator.
type Option func(*Collator)

// WithLanguage sets the collation language. The default is English.
func WithLanguage(tag language.Tag) Option {
	return func(c *Collator) {
		c.tag = tag
	}
}

// New creates a collator.
func New(opts ...Option) *Collator {
	c := &Collator{tag: language.English}
	for _, opt := range opts {
		opt(c)
	}
	c.coll = collate.New(c.tag, collate.IgnoreCase)
	c.lower = cases.Lower(c.tag)
	c.upper = cases.Upper(c.tag)
	c.fold = cases.Fold()
	return c
}

// SupportedLanguages returns the RFC 4646 language code of the collator.
func (c *Collator) SupportedLanguages() string {
	return c.tag.String()
}

// StriColl implements Protocol.
func (c *Collator) StriColl(a, b string) int {
	return c.coll.CompareString(a, b)
}

// StrLwr implements Protocol.
func (c *Collator) StrLwr(s string) string {
	return c.lower.String(s)
}

// StrUpr implements Protocol.
func (c *Collator) StrUpr(s string) string {
	return c.upper.String(s)
}

// MetaiMatch implements Protocol.
func (c *Collator) MetaiMatch(s, pattern string) bool {
	return match([]rune(c.fold.String(s)), []rune(c.fold.String(pattern)))
}

// match is a backtracking glob matcher over runes.
func match(s, p []rune) bool {
	for len(p) > 0 {
		switch p[0] {
		case '*':
			for len(p) > 0 && p[0] == '*' {
				p = p[1:]
			}
			if len(p) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if match(s[i:], p) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			s, p = s[1:], p[1:]
		case '[':
			if len(s) == 0 {
				return false
			}
			ok, rest, valid := matchSet(s[0], p[1:])
			if !valid {
				// An unterminated set matches a literal '['.
				if s[0] != '[' {
					return false
				}
				s, p = s[1:], p[1:]
				continue
			}
			if !ok {
				return false
			}
			s, p = s[1:], rest
		default:
			if len(s) == 0 || s[0] != p[0] {
				return false
			}
			s, p = s[1:], p[1:]
		}
	}
	return len(s) == 0
}

// matchSet matches r against the set body p (after '['). It returns the
// pattern after the closing ']' and whether the set was terminated.
func matchSet(r rune, p []rune) (matched bool, rest []rune, valid bool) {
	for i := 0; i < len(p); i++ {
		if p[i] == ']' {
			return matched, p[i+1:], true
		}
		if i+2 < len(p) && p[i+1] == '-' && p[i+2] != ']' {
			if p[i] <= r && r <= p[i+2] {
				matched = true
			}
			i += 2
			continue
		}
		if p[i] == r {
			matched = true
		}
	}
	return false, nil, false
}

// invalidFat lists the printable characters FAT names may not contain.
const invalidFat = "\"*+,/:;<=>?[\\]|"

// FatToStr implements Protocol.
func (c *Collator) FatToStr(fat []byte) string {
	if i := strings.IndexByte(string(fat), 0); i >= 0 {
		fat = fat[:i]
	}
	out, err := charmap.CodePage437.NewDecoder().Bytes(fat)
	if err != nil {
		return string(fat)
	}
	return string(out)
}

// StrToFat implements Protocol. A size below one yields an empty name.
func (c *Collator) StrToFat(s string, size int) ([]byte, bool) {
	size = max(size, 0)
	out := make([]byte, 0, size)
	replaced := false
	for _, r := range c.upper.String(s) {
		if len(out) >= size {
			break
		}
		if r == ' ' || r == '.' {
			continue
		}
		b, ok := charmap.CodePage437.EncodeRune(r)
		if !ok || r < 0x20 || strings.ContainsRune(invalidFat, r) {
			out = append(out, '_')
			replaced = true
			continue
		}
		out = append(out, b)
	}
	return out, replaced
}
