package models

import "time"

// TriggerType is the closed enumeration of audience signals that select a
// playlist at runtime, shared by DevicePlaylistAssignment and
// LayerPlaylistTrigger.
type TriggerType string

const (
	TriggerDefault          TriggerType = "default"
	TriggerFaceDetected     TriggerType = "face_detected"
	TriggerAgeChild         TriggerType = "age_child"
	TriggerAgeTeen          TriggerType = "age_teen"
	TriggerAgeAdult         TriggerType = "age_adult"
	TriggerAgeSenior        TriggerType = "age_senior"
	TriggerGenderMale       TriggerType = "gender_male"
	TriggerGenderFemale     TriggerType = "gender_female"
	TriggerLoyaltyRecognized TriggerType = "loyalty_recognized"
	TriggerNCMECAlert       TriggerType = "ncmec_alert"
)

// ValidTriggerTypes enumerates the closed trigger set for validation.
var ValidTriggerTypes = map[TriggerType]bool{
	TriggerDefault:           true,
	TriggerFaceDetected:      true,
	TriggerAgeChild:          true,
	TriggerAgeTeen:           true,
	TriggerAgeAdult:          true,
	TriggerAgeSenior:         true,
	TriggerGenderMale:        true,
	TriggerGenderFemale:      true,
	TriggerLoyaltyRecognized: true,
	TriggerNCMECAlert:        true,
}

// IsDefault reports whether t is the default trigger, which decides
// whether a new assignment starts enabled.
func (t TriggerType) IsDefault() bool { return t == TriggerDefault }

// PlaylistTriggerKind and LoopMode are closed enumerations on Playlist.
type PlaylistTriggerKind string

const (
	PlaylistTriggerTime   PlaylistTriggerKind = "time"
	PlaylistTriggerEvent  PlaylistTriggerKind = "event"
	PlaylistTriggerManual PlaylistTriggerKind = "manual"
)

type LoopMode string

const (
	LoopContinuous LoopMode = "continuous"
	LoopPlayOnce   LoopMode = "play_once"
	LoopScheduled  LoopMode = "scheduled"
)

// SyncStatus is the aggregate sync status derived for a Playlist (C7).
type SyncStatus string

const (
	SyncStatusInSync  SyncStatus = "in_sync"
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusError   SyncStatus = "error"
)

// Playlist is a scheduled, versioned sequence of content items.
type Playlist struct {
	ID            string
	TenantID      string
	Name          string
	Description   *string
	TriggerType   PlaylistTriggerKind
	TriggerConfig *string // opaque JSON, interpreted by the trigger kind
	LoopMode      LoopMode
	Priority      int
	Start         *time.Time
	End           *time.Time
	IsActive      bool
	Version       int64
	SyncStatus    SyncStatus
}

// ScheduleValid enforces start <= end when both are set.
func (p *Playlist) ScheduleValid() bool {
	if p.Start != nil && p.End != nil {
		return !p.Start.After(*p.End)
	}
	return true
}

// ContentRefKind tags which concrete content a PlaylistItem resolves to
// (spec section 9: explicit tagged variants, not presence-of-field).
type ContentRefKind string

const (
	ContentRefLocal   ContentRefKind = "local"
	ContentRefCatalog ContentRefKind = "catalog"
)

// ContentRef is the tagged union ContentRef = LocalContent(id) | CatalogContent(id).
type ContentRef struct {
	Kind ContentRefKind
	ID   string
}

// PlaylistItem is one dense-positioned entry in a Playlist.
type PlaylistItem struct {
	ID               string
	PlaylistID       string
	ContentRef       ContentRef
	Position         int
	DurationOverride *time.Duration
}

// DevicePlaylistAssignment binds a device to a playlist under a trigger.
type DevicePlaylistAssignment struct {
	ID          string
	DeviceID    string
	PlaylistID  string
	TriggerType TriggerType
	Priority    int
	IsEnabled   bool
	Start       *time.Time
	End         *time.Time
}

// SyncState is the per-device-per-playlist delivery state (C7).
type SyncState string

const (
	SyncStatePending SyncState = "pending"
	SyncStateQueued  SyncState = "queued"
	SyncStateSyncing SyncState = "syncing"
	SyncStateSynced  SyncState = "synced"
	SyncStateFailed  SyncState = "failed"
)

// DevicePlaylistSync tracks whether a device has observed a playlist's
// current version.
type DevicePlaylistSync struct {
	DeviceID       string
	PlaylistID     string
	SyncedVersion  *int64
	State          SyncState
	LastAttempt    *time.Time
	LastSuccess    *time.Time
	Error          *string
}

// UpToDate reports whether this sync row reflects the playlist's current
// version (spec section 4.7's "up to date" definition).
func (s *DevicePlaylistSync) UpToDate(playlistVersion int64) bool {
	return s.State == SyncStateSynced && s.SyncedVersion != nil && *s.SyncedVersion >= playlistVersion
}
