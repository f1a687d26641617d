package domain

import "strconv"

// MemberSource 党员（members 表，只读）
type MemberSource struct {
	MemberID     int64
	NationalID   string
	Phone        string
	Archived     bool
	FirstName    string
	LastName     string
	DistrictID   int64
	DistrictName string
	TownID       int64
	TownName     string
}

// FullName joins first and last name.
func (m *MemberSource) FullName() string {
	switch {
	case m.FirstName == "":
		return m.LastName
	case m.LastName == "":
		return m.FirstName
	}
	return m.FirstName + " " + m.LastName
}

// DistrictChairSource 区主席（districts 表，只读）
type DistrictChairSource struct {
	DistrictID    int64
	DistrictName  string
	ChairmanName  string
	ChairmanPhone string
}

// TownChairSource 镇主席（towns 表，只读）
type TownChairSource struct {
	TownID        int64
	TownName      string
	DistrictID    int64
	ChairmanName  string
	ChairmanPhone string
}

// FormatRef renders a source id as a credential source_ref.
func FormatRef(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseRef parses a credential source_ref back into a source id.
func ParseRef(ref string) (int64, bool) {
	if ref == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
