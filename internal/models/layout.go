package models

// Layout is a named, versioned canvas of z-ordered layers assignable to
// devices.
type Layout struct {
	ID       string
	TenantID string
	Name     string
	Width    int
	Height   int
	Version  int64
	IsActive bool
}

// LayerContentMode distinguishes a layer that shows a single fixed playlist
// from one whose content is selected by trigger at render time.
type LayerContentMode string

const (
	LayerContentFixed   LayerContentMode = "fixed"
	LayerContentTrigger LayerContentMode = "trigger"
)

// Layer is one rectangular, z-ordered region of a Layout's canvas.
type Layer struct {
	ID         string
	LayoutID   string
	Name       string
	ZIndex     int
	X          int
	Y          int
	Width      int
	Height     int
	ContentMode LayerContentMode
	PlaylistID *string // set when ContentMode == LayerContentFixed
}

// WithinCanvas reports whether the layer's rectangle fits inside the
// layout's canvas bounds.
func (l *Layer) WithinCanvas(layout *Layout) bool {
	return l.X >= 0 && l.Y >= 0 &&
		l.X+l.Width <= layout.Width &&
		l.Y+l.Height <= layout.Height
}

// LayerPlaylistTrigger maps one trigger, within one layer, to the playlist
// that should render when that trigger is active. Distinct from
// DevicePlaylistAssignment: this binds at the layer level so multiple
// layers in the same layout can react to different triggers concurrently.
type LayerPlaylistTrigger struct {
	ID          string
	LayerID     string
	TriggerType TriggerType
	PlaylistID  string
	Priority    int
}

// DeviceLayerOverride lets one device pin a layer to a playlist different
// from its layout's trigger-resolved default, without forking the layout.
type DeviceLayerOverride struct {
	ID         string
	DeviceID   string
	LayerID    string
	PlaylistID string
}
