package units

import (
	"log/slog"

	"github.com/roach88/selftest/internal/collation"
	"github.com/roach88/selftest/internal/firmware"
	"github.com/roach88/selftest/internal/suite"
)

type unicodeCollation struct {
	proto  collation.Protocol
	logger *slog.Logger
}

// UnicodeCollation checks the Unicode collation protocol: case-insensitive
// comparison, pattern matching, case mapping and FAT name conversion.
func UnicodeCollation() *suite.Unit {
	u := &unicodeCollation{}
	return &suite.Unit{
		Name:    "unicode collation",
		Phase:   suite.PhaseRunBeforeTransition,
		Setup:   u.setup,
		Execute: u.execute,
	}
}

func (u *unicodeCollation) setup(env *firmware.Env) suite.Outcome {
	u.logger = env.Logger()
	iface, st := env.Boot().LocateProtocol(collation.ProtocolGUID)
	if st != firmware.StatusSuccess {
		u.logger.Error("unicode collation protocol is not available", "status", st.String())
		return suite.Failure
	}
	proto, ok := iface.(collation.Protocol)
	if !ok {
		u.logger.Error("unicode collation protocol has unexpected type")
		return suite.Failure
	}
	u.proto = proto
	return suite.Success
}

func (u *unicodeCollation) execute() suite.Outcome {
	if u.proto == nil {
		u.logger.Error("unicode collation protocol missing")
		return suite.Failure
	}
	for _, check := range []func() bool{
		u.striColl,
		u.metaiMatch,
		u.caseMapping,
		u.fatToStr,
		u.strToFat,
	} {
		if !check() {
			return suite.Failure
		}
	}
	return suite.Success
}

func (u *unicodeCollation) striColl() bool {
	if r := u.proto.StriColl("first", "FIRST"); r != 0 {
		u.logger.Error("stri_coll mismatch", "a", "first", "b", "FIRST", "result", r)
		return false
	}
	if r := u.proto.StriColl("first", "second"); r >= 0 {
		u.logger.Error("stri_coll mismatch", "a", "first", "b", "second", "result", r)
		return false
	}
	if r := u.proto.StriColl("second", "first"); r <= 0 {
		u.logger.Error("stri_coll mismatch", "a", "second", "b", "first", "result", r)
		return false
	}
	return true
}

func (u *unicodeCollation) metaiMatch() bool {
	const s = "Das U-Boot"
	patterns := []struct {
		pattern string
		want    bool
	}{
		{"*", true},
		{"Da[rstu] U-Boot", true},
		{"Da[q-v] U-Boot", true},
		{"Da? U-Boot", true},
		{"D*Bo*t", true},
		{"Da[xyz] U-Boot", false},
		{"Da[a-d] U-Boot", false},
		{"Da?? U-Boot", false},
		{"D*Bo*tt", false},
	}
	for _, p := range patterns {
		if got := u.proto.MetaiMatch(s, p.pattern); got != p.want {
			u.logger.Error("metai_match mismatch", "pattern", p.pattern, "result", got)
			return false
		}
	}
	return true
}

func (u *unicodeCollation) caseMapping() bool {
	if got := u.proto.StrLwr("U-Boot"); got != "u-boot" {
		u.logger.Error("str_lwr mismatch", "result", got)
		return false
	}
	if got := u.proto.StrUpr("U-Boot"); got != "U-BOOT" {
		u.logger.Error("str_upr mismatch", "result", got)
		return false
	}
	return true
}

func (u *unicodeCollation) fatToStr() bool {
	if got := u.proto.FatToStr([]byte("U-BOOT")); got != "U-BOOT" {
		u.logger.Error("fat_to_str mismatch", "result", got)
		return false
	}
	return true
}

func (u *unicodeCollation) strToFat() bool {
	fat, replaced := u.proto.StrToFat("U -Boo.t", 6)
	if replaced || string(fat) != "U-BOOT" {
		u.logger.Error("str_to_fat mismatch", "result", string(fat), "replaced", replaced)
		return false
	}
	fat, replaced = u.proto.StrToFat(`U\Boot`, 6)
	if !replaced || string(fat) != "U_BOOT" {
		u.logger.Error("str_to_fat mismatch", "result", string(fat), "replaced", replaced)
		return false
	}
	return true
}
