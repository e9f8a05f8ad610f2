package collation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestStriColl(t *testing.T) {
	c := New()
	assert.Equal(t, 0, c.StriColl("first", "FIRST"))
	assert.Less(t, c.StriColl("first", "second"), 0)
	assert.Greater(t, c.StriColl("second", "first"), 0)
}

func TestMetaiMatch(t *testing.T) {
	c := New()
	const s = "Das U-Boot"

	tests := []struct {
		pattern string
		want    bool
	}{
		{"*", true},
		{"Da[rstu] U-Boot", true},
		{"Da[q-v] U-Boot", true},
		{"Da? U-Boot", true},
		{"D*Bo*t", true},
		{"das u-boot", true},
		{"Da[xyz] U-Boot", false},
		{"Da[a-d] U-Boot", false},
		{"Da?? U-Boot", false},
		{"D*Bo*tt", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, c.MetaiMatch(s, tt.pattern))
		})
	}
}

func TestMetaiMatch_EdgeCases(t *testing.T) {
	c := New()
	assert.True(t, c.MetaiMatch("", ""))
	assert.True(t, c.MetaiMatch("", "*"))
	assert.False(t, c.MetaiMatch("", "?"))
	assert.True(t, c.MetaiMatch("a[b", "a[b"), "unterminated set is literal")
	assert.True(t, c.MetaiMatch("a-", "a[-]"))
	assert.True(t, c.MetaiMatch("abc", "**c"))
}

func TestStrLwrUpr(t *testing.T) {
	c := New()
	assert.Equal(t, "u-boot", c.StrLwr("U-Boot"))
	assert.Equal(t, "U-BOOT", c.StrUpr("U-Boot"))
}

func TestFatToStr(t *testing.T) {
	c := New()
	assert.Equal(t, "U-BOOT", c.FatToStr([]byte("U-BOOT")))
	assert.Equal(t, "U-BOOT", c.FatToStr([]byte("U-BOOT\x00\x00junk")))
	assert.Equal(t, "É", c.FatToStr([]byte{0x90}), "code page 437")
}

func TestStrToFat(t *testing.T) {
	c := New()

	fat, replaced := c.StrToFat("U -Boo.t", 6)
	assert.Equal(t, "U-BOOT", string(fat))
	assert.False(t, replaced)

	fat, replaced = c.StrToFat(`U\Boot`, 6)
	assert.Equal(t, "U_BOOT", string(fat))
	assert.True(t, replaced)

	fat, _ = c.StrToFat("longfilename", 8)
	assert.Equal(t, "LONGFILE", string(fat))

	fat, replaced = c.StrToFat("a☃b", 8)
	assert.Equal(t, "A_B", string(fat), "unencodable rune")
	assert.True(t, replaced)

	for _, size := range []int{0, -1} {
		fat, replaced = c.StrToFat("boot", size)
		assert.Empty(t, fat, "size %d", size)
		assert.False(t, replaced)
	}
}

func TestSupportedLanguages(t *testing.T) {
	assert.Equal(t, "en", New().SupportedLanguages())
	assert.Equal(t, "de", New(WithLanguage(language.German)).SupportedLanguages())
}

func TestCollatorImplementsProtocol(t *testing.T) {
	var _ Protocol = New()
	assert.Equal(t, "a4c751fc-23ae-4c3e-92e9-4964cf63f349", ProtocolGUID.String())
}
