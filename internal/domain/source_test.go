package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRef(t *testing.T) {
	id, ok := ParseRef("42")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "abc", "0", "-3", "4.2"} {
		_, ok := ParseRef(bad)
		assert.False(t, ok, bad)
	}
	assert.Equal(t, "7", FormatRef(7))
}

func TestMemberSource_FullName(t *testing.T) {
	assert.Equal(t, "Ayşe Yılmaz", (&MemberSource{FirstName: "Ayşe", LastName: "Yılmaz"}).FullName())
	assert.Equal(t, "Ayşe", (&MemberSource{FirstName: "Ayşe"}).FullName())
	assert.Equal(t, "Yılmaz", (&MemberSource{LastName: "Yılmaz"}).FullName())
}

func TestSourceKind_Valid(t *testing.T) {
	for _, k := range SourceKinds {
		assert.True(t, k.Valid())
	}
	assert.False(t, SourceKind("village_chair").Valid())
	assert.False(t, SourceKind("").Valid())
}
