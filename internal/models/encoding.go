package models

import "time"

// RecordStatus governs MissingPerson compilation eligibility.
type RecordStatus string

const (
	MissingPersonStatusActive   RecordStatus = "active"
	MissingPersonStatusResolved RecordStatus = "resolved"
)

// Compilable is the narrow capability the Compiler (C2) consumes from both
// concrete encoding record types. Deliberately not a shared base type —
// MissingPerson and LoyaltyMember have nothing else in common (spec section 9,
// "Polymorphism over Encoding").
type Compilable interface {
	// RecordID is the record's stable identifier used for deterministic
	// compilation ordering (case_id or member_code).
	RecordID() string
	// Vector returns the raw feature vector bytes (FeatureDim*4 bytes).
	Vector() []byte
	// DisplayMetadata returns the fields the sidecar JSON stores for this
	// row so the edge can map a search hit back to something showable.
	DisplayMetadata() map[string]interface{}
	// HasUsablePhoto reports false for zero-vector placeholder rows, which
	// the compiler must skip.
	HasUsablePhoto() bool
}

// MissingPerson is a compiled-index-eligible missing-child record. Global,
// with no tenant owner.
type MissingPerson struct {
	ID                    string
	CaseID                string
	Name                  string
	AgeAtDisappearance    *int
	DisappearanceDate     *time.Time
	LastKnownLocation     *string
	Status                RecordStatus
	FeatureVector         []byte
	PhotoPath             *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (m *MissingPerson) RecordID() string { return m.CaseID }
func (m *MissingPerson) Vector() []byte    { return m.FeatureVector }
func (m *MissingPerson) HasUsablePhoto() bool {
	return !isZeroVector(m.FeatureVector)
}
func (m *MissingPerson) DisplayMetadata() map[string]interface{} {
	meta := map[string]interface{}{
		"id":      m.ID,
		"case_id": m.CaseID,
		"name":    m.Name,
	}
	if m.AgeAtDisappearance != nil {
		meta["age_at_disappearance"] = *m.AgeAtDisappearance
	}
	if m.DisappearanceDate != nil {
		meta["disappearance_date"] = m.DisappearanceDate.Format(time.RFC3339)
	}
	if m.LastKnownLocation != nil {
		meta["last_known_location"] = *m.LastKnownLocation
	}
	return meta
}

// LoyaltyMember is a tenant-scoped loyalty program member eligible for
// per-tenant compilation.
type LoyaltyMember struct {
	ID                 string
	TenantID           string
	MemberCode         string
	Name               string
	Email              *string
	Phone              *string
	AssignedPlaylistID *string
	LastSeenAt         *time.Time
	LastSeenStore      *string
	FeatureVector      []byte
	PhotoPath          *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (l *LoyaltyMember) RecordID() string { return l.MemberCode }
func (l *LoyaltyMember) Vector() []byte    { return l.FeatureVector }
func (l *LoyaltyMember) HasUsablePhoto() bool {
	return !isZeroVector(l.FeatureVector)
}
func (l *LoyaltyMember) DisplayMetadata() map[string]interface{} {
	meta := map[string]interface{}{
		"id":          l.ID,
		"member_code": l.MemberCode,
		"name":        l.Name,
	}
	if l.Email != nil {
		meta["email"] = *l.Email
	}
	if l.Phone != nil {
		meta["phone"] = *l.Phone
	}
	return meta
}

func isZeroVector(v []byte) bool {
	for _, b := range v {
		if b != 0 {
			return false
		}
	}
	return len(v) > 0
}

// ValidVectorWidth reports whether len(vector) == dim*4, the invariant every
// EncodingRecord must satisfy (spec section 8, property 1).
func ValidVectorWidth(vector []byte, dim int) bool {
	return len(vector) == dim*4
}
