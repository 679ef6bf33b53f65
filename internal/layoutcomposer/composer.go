// Package layoutcomposer implements the Layout Composer (C6): it resolves
// what a specific device should render right now, by walking the device's
// layout, each layer's z-order, and each layer's trigger bindings against
// the device's currently active audience signal.
package layoutcomposer

import (
	"context"
	"fmt"
	"sort"

	"github.com/sentryfleet/sentryfleet/internal/apierr"
	"github.com/sentryfleet/sentryfleet/internal/database"
	"github.com/sentryfleet/sentryfleet/internal/models"
)

// ResolvedLayer is one layer's final, trigger-resolved playlist for a
// render pass.
type ResolvedLayer struct {
	Layer      *models.Layer
	PlaylistID string
	Source     string // "override", "trigger", "fixed", or "default"
}

// Composition is a device's full, z-ordered rendering plan.
type Composition struct {
	Layout *models.Layout
	Layers []ResolvedLayer
}

// Composer resolves device compositions.
type Composer struct {
	db *database.DB
}

// New constructs a Composer backed by db.
func New(db *database.DB) *Composer {
	return &Composer{db: db}
}

// Compose resolves deviceID's current composition. activeTrigger is the
// audience signal currently observed by the device's recognition pipeline
// (models.TriggerDefault if none), used to pick each trigger-mode layer's
// playlist.
func (c *Composer) Compose(ctx context.Context, deviceID string, activeTrigger models.TriggerType) (*Composition, error) {
	device, err := c.db.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device.LayoutID == nil {
		return nil, apierr.New(apierr.KindNotFound, fmt.Sprintf("device %s has no layout assigned", deviceID))
	}

	layout, err := c.db.GetLayout(ctx, *device.LayoutID)
	if err != nil {
		return nil, err
	}

	layers, err := c.db.ListLayersByLayout(ctx, layout.ID)
	if err != nil {
		return nil, err
	}

	sort.Slice(layers, func(i, j int) bool { return layers[i].ZIndex < layers[j].ZIndex })

	resolved := make([]ResolvedLayer, 0, len(layers))
	for _, layer := range layers {
		r, err := c.resolveLayer(ctx, deviceID, layer, activeTrigger)
		if err != nil {
			return nil, err
		}
		if r != nil {
			resolved = append(resolved, *r)
		}
	}

	return &Composition{Layout: layout, Layers: resolved}, nil
}

// resolveLayer applies the precedence order: a device-specific override
// wins outright; otherwise a fixed-content layer renders its pinned
// playlist; otherwise a trigger-mode layer picks the highest-priority
// binding that matches activeTrigger, falling back to the default
// trigger's binding if no specific match exists. A trigger-mode layer
// with no matching binding at all renders nothing.
func (c *Composer) resolveLayer(ctx context.Context, deviceID string, layer *models.Layer, activeTrigger models.TriggerType) (*ResolvedLayer, error) {
	override, err := c.db.GetDeviceLayerOverride(ctx, deviceID, layer.ID)
	if err != nil {
		return nil, err
	}
	if override != nil {
		return &ResolvedLayer{Layer: layer, PlaylistID: override.PlaylistID, Source: "override"}, nil
	}

	if layer.ContentMode == models.LayerContentFixed {
		if layer.PlaylistID == nil {
			return nil, nil
		}
		return &ResolvedLayer{Layer: layer, PlaylistID: *layer.PlaylistID, Source: "fixed"}, nil
	}

	triggers, err := c.db.ListTriggersByLayer(ctx, layer.ID)
	if err != nil {
		return nil, err
	}

	var matched, fallback *models.LayerPlaylistTrigger
	for i, t := range triggers {
		if t.TriggerType == activeTrigger && matched == nil {
			matched = triggers[i]
		}
		if t.TriggerType == models.TriggerDefault && fallback == nil {
			fallback = triggers[i]
		}
	}

	switch {
	case matched != nil:
		return &ResolvedLayer{Layer: layer, PlaylistID: matched.PlaylistID, Source: "trigger"}, nil
	case fallback != nil:
		return &ResolvedLayer{Layer: layer, PlaylistID: fallback.PlaylistID, Source: "default"}, nil
	default:
		return nil, nil
	}
}
