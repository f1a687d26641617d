package domain

import "time"

// SourceKind 凭据来源类型
type SourceKind string

const (
	SourceMember        SourceKind = "member"
	SourceDistrictChair SourceKind = "district_chair"
	SourceTownChair     SourceKind = "town_chair"
)

// SourceKinds lists every kind in reconciliation order.
var SourceKinds = []SourceKind{SourceMember, SourceDistrictChair, SourceTownChair}

// Valid reports whether k is one of the known kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceMember, SourceDistrictChair, SourceTownChair:
		return true
	}
	return false
}

// Credential 派生登录凭据（对应 credentials 表）
type Credential struct {
	ID         string     `json:"id"`
	SourceKind SourceKind `json:"source_kind"`
	// SourceRef is the decimal member/district/town id. Empty only for legacy rows.
	SourceRef   string    `json:"source_ref"`
	Username    string    `json:"username"`
	Password    string    `json:"password"`
	DisplayName string    `json:"display_name"`
	Active      bool      `json:"active"`
	Pinned      bool      `json:"pinned"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a copy safe to hand out of a store.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
