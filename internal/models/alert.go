package models

import "time"

// AlertType is the closed set of recognition events that can raise an Alert.
type AlertType string

const (
	AlertTypeMissingPersonMatch AlertType = "missing_person_match"
	AlertTypeLoyaltyMatch       AlertType = "loyalty_match"
)

// AlertStatus is the Alert lifecycle state.
type AlertStatus string

const (
	AlertStatusNew           AlertStatus = "new"
	AlertStatusReviewed      AlertStatus = "reviewed"
	AlertStatusEscalated     AlertStatus = "escalated"
	AlertStatusResolved      AlertStatus = "resolved"
	AlertStatusFalsePositive AlertStatus = "false_positive"
)

var validAlertTransitions = map[AlertStatus]map[AlertStatus]bool{
	AlertStatusNew: {
		AlertStatusReviewed:      true,
		AlertStatusEscalated:     true,
		AlertStatusResolved:      true,
		AlertStatusFalsePositive: true,
	},
	AlertStatusReviewed: {
		AlertStatusEscalated:     true,
		AlertStatusResolved:      true,
		AlertStatusFalsePositive: true,
	},
	AlertStatusEscalated: {
		AlertStatusResolved:      true,
		AlertStatusFalsePositive: true,
	},
}

// CanTransitionAlertStatus reports whether the review workflow permits
// from -> to. Resolved and false_positive are terminal: neither has any
// outgoing edge.
func CanTransitionAlertStatus(from, to AlertStatus) bool {
	return validAlertTransitions[from][to]
}

// AlertSubjectKind tags which concrete record an Alert concerns (spec
// section 9: explicit tagged variants, not a shared base type).
type AlertSubjectKind string

const (
	AlertSubjectMissingPerson AlertSubjectKind = "missing_person"
	AlertSubjectLoyaltyMember AlertSubjectKind = "loyalty_member"
)

// AlertSubject is the tagged union AlertSubject = MissingPerson(case_ref) |
// LoyaltyMember(member_ref).
type AlertSubject struct {
	Kind AlertSubjectKind
	Ref  string // case_id for MissingPerson, member_code for LoyaltyMember
}

// Alert is a recognition-pipeline match requiring human review and
// outbound notification.
type Alert struct {
	ID                string
	TenantID          *string // nil for missing-person alerts, the global scope
	DeviceID          string
	Type              AlertType
	Subject           AlertSubject
	Status            AlertStatus
	Confidence        float64
	MatchedAt         time.Time
	ReviewedBy        *string
	ReviewedAt        *time.Time
	DismissReason     *string
	CapturedImagePath *string
}

// RequiresNotification reports whether this alert type must fan out through
// the Notification Worker (C9) on creation. Both recognized alert types
// carry a fixed notification-rule mapping (spec section 4.8).
func (a *Alert) RequiresNotification() bool {
	return a.Type == AlertTypeMissingPersonMatch || a.Type == AlertTypeLoyaltyMatch
}
