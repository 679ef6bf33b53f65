// Package models defines the data model shared across Sentry Fleet's
// components: tenants, the device/hub fleet, encoding records, compiled
// index artifacts, playlists and layouts, and alerts/notifications.
package models

import (
	"regexp"
	"time"
)

// Tenant is the logical owner of hubs, devices, content, playlists,
// layouts, and loyalty members. Historically called "Network" in the
// source system this spec distills.
type Tenant struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidSlug reports whether s is a legal, lowercase tenant slug.
func ValidSlug(s string) bool {
	return s != "" && slugPattern.MatchString(s)
}
