// Package identity derives login identities from source entities.
//
// Every function here is pure: the same input always yields the same output.
// Reconciliation re-derives on every pass and compares against stored values,
// so any change to the output of OrgUsername for existing inputs rewrites
// usernames in production.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"secretariat-data/internal/domain"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidSource 来源数据不可用于派生凭据（未合格）
var ErrInvalidSource = errors.New("invalid source")

// Derived is the desired credential state for one source entity.
type Derived struct {
	Username    string
	Password    string
	DisplayName string
}

// transliteration of the Turkish letters that survive lower-casing
var transliteration = map[rune]rune{
	'ç': 'c',
	'ğ': 'g',
	'ı': 'i',
	'ö': 'o',
	'ş': 's',
	'ü': 'u',
	'â': 'a',
	'î': 'i',
	'û': 'u',
}

// DigitsOnly strips every non-digit character.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PasswordFromPhone derives the password from a phone number.
func PasswordFromPhone(phone string) (string, error) {
	p := DigitsOnly(phone)
	if p == "" {
		return "", fmt.Errorf("%w: phone has no digits", ErrInvalidSource)
	}
	return p, nil
}

// MemberUsername uses the national id verbatim (surrounding whitespace trimmed).
func MemberUsername(nationalID string) (string, error) {
	u := strings.TrimSpace(nationalID)
	if u == "" {
		return "", fmt.Errorf("%w: national id is empty", ErrInvalidSource)
	}
	return u, nil
}

// OrgUsername normalizes a district/town name into a username.
// Output only contains [a-z0-9_]; it may be empty.
func OrgUsername(orgName string) string {
	// cases.Caser is stateful, one per call
	lower := cases.Lower(language.Turkish).String(orgName)

	t := transform.Chain(
		runes.Map(func(r rune) rune {
			if m, ok := transliteration[r]; ok {
				return m
			}
			return r
		}),
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	folded, _, err := transform.String(t, lower)
	if err != nil {
		folded = lower
	}

	var b strings.Builder
	b.Grow(len(folded))
	inSpace := false
	for _, r := range strings.TrimSpace(folded) {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}

	collapsed := b.String()
	b.Reset()
	for _, r := range collapsed {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DeriveMember 派生党员凭据
func DeriveMember(m *domain.MemberSource) (Derived, error) {
	if m == nil {
		return Derived{}, fmt.Errorf("%w: member not found", ErrInvalidSource)
	}
	if m.Archived {
		return Derived{}, fmt.Errorf("%w: member %d is archived", ErrInvalidSource, m.MemberID)
	}
	username, err := MemberUsername(m.NationalID)
	if err != nil {
		return Derived{}, err
	}
	password, err := PasswordFromPhone(m.Phone)
	if err != nil {
		return Derived{}, err
	}
	// member display names are resolved from the member row at read time
	return Derived{Username: username, Password: password}, nil
}

// DeriveDistrictChair 派生区主席凭据
func DeriveDistrictChair(d *domain.DistrictChairSource) (Derived, error) {
	if d == nil {
		return Derived{}, fmt.Errorf("%w: district not found", ErrInvalidSource)
	}
	return deriveChair(d.DistrictName, d.ChairmanName, d.ChairmanPhone)
}

// DeriveTownChair 派生镇主席凭据
func DeriveTownChair(t *domain.TownChairSource) (Derived, error) {
	if t == nil {
		return Derived{}, fmt.Errorf("%w: town not found", ErrInvalidSource)
	}
	return deriveChair(t.TownName, t.ChairmanName, t.ChairmanPhone)
}

func deriveChair(orgName, chairmanName, phone string) (Derived, error) {
	name := strings.TrimSpace(chairmanName)
	if name == "" {
		return Derived{}, fmt.Errorf("%w: chairman name is empty", ErrInvalidSource)
	}
	username := OrgUsername(orgName)
	if username == "" {
		return Derived{}, fmt.Errorf("%w: org name %q normalizes to an empty username", ErrInvalidSource, orgName)
	}
	password, err := PasswordFromPhone(phone)
	if err != nil {
		return Derived{}, err
	}
	return Derived{Username: username, Password: password, DisplayName: name}, nil
}
