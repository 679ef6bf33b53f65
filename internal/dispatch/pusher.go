package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/sentryfleet/sentryfleet/internal/database"
	"github.com/sentryfleet/sentryfleet/internal/layoutcomposer"
)

// HTTPPusher delivers a resolved composition to a device agent over plain
// HTTP, the out-of-scope transport seam the Pusher interface exists for
// (spec section 1 leaves device-agent transport unspecified). It looks
// the device's current IP up at push time rather than caching it, since a
// device's address can change between assignment and push.
type HTTPPusher struct {
	db     *database.DB
	client *http.Client
}

// NewHTTPPusher constructs an HTTPPusher with timeout as its per-push
// request budget.
func NewHTTPPusher(db *database.DB, timeout time.Duration) *HTTPPusher {
	return &HTTPPusher{db: db, client: &http.Client{Timeout: timeout}}
}

// Push implements dispatch.Pusher.
func (p *HTTPPusher) Push(ctx context.Context, deviceID string, composition *layoutcomposer.Composition) error {
	device, err := p.db.GetDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("load device %s for push: %w", deviceID, err)
	}
	if device.IP == "" {
		return fmt.Errorf("device %s has no known address to push to", deviceID)
	}

	body, err := json.Marshal(composition)
	if err != nil {
		return fmt.Errorf("marshal composition for device %s: %w", deviceID, err)
	}

	url := fmt.Sprintf("http://%s/sentryfleet/layout", device.IP)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request for device %s: %w", deviceID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("push to device %s: %w", deviceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("device %s rejected push with status %d", deviceID, resp.StatusCode)
	}
	return nil
}
