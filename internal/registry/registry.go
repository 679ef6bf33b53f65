// Package registry implements the Index Registry (C3): read access to
// sealed IndexArtifacts, the only way any other component or an edge
// device learns which compiled index is current.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sentryfleet/sentryfleet/internal/apierr"
	"github.com/sentryfleet/sentryfleet/internal/database"
	"github.com/sentryfleet/sentryfleet/internal/models"
)

// Registry serves artifact metadata and streams artifact files.
type Registry struct {
	db *database.DB
}

// New constructs a Registry backed by db.
func New(db *database.DB) *Registry {
	return &Registry{db: db}
}

// Latest returns the newest sealed artifact for scope.
func (r *Registry) Latest(ctx context.Context, scope string) (*models.IndexArtifact, error) {
	a, err := r.db.LatestArtifact(ctx, scope)
	if err != nil {
		return nil, mapNotFound(err, scope)
	}
	return a, nil
}

// ByVersion returns the artifact for scope sealed at exactly version.
func (r *Registry) ByVersion(ctx context.Context, scope string, version int64) (*models.IndexArtifact, error) {
	a, err := r.db.ArtifactByVersion(ctx, scope, version)
	if err != nil {
		return nil, mapNotFound(err, scope)
	}
	return a, nil
}

// List returns every retained artifact for scope, newest first.
func (r *Registry) List(ctx context.Context, scope string) ([]*models.IndexArtifact, error) {
	return r.db.ListArtifacts(ctx, scope)
}

// Stream opens the artifact's sealed index file for reading. The caller
// must Close the returned ReadCloser.
func (r *Registry) Stream(ctx context.Context, scope string, version int64) (io.ReadCloser, *models.IndexArtifact, error) {
	a, err := r.ByVersion(ctx, scope, version)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open artifact file %s: %w", a.Path, err)
	}
	return f, a, nil
}

// Metadata reads and decodes the JSON sidecar that was sealed alongside
// the artifact's index file, for the .../download/metadata endpoints.
func (r *Registry) Metadata(ctx context.Context, scope string, version int64) (*models.Sidecar, error) {
	a, err := r.ByVersion(ctx, scope, version)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(sidecarPath(a.Path))
	if err != nil {
		return nil, fmt.Errorf("read sidecar for artifact %s: %w", a.ID, err)
	}
	var sidecar models.Sidecar
	if err := json.Unmarshal(data, &sidecar); err != nil {
		return nil, fmt.Errorf("decode sidecar for artifact %s: %w", a.ID, err)
	}
	return &sidecar, nil
}

func sidecarPath(indexPath string) string {
	ext := filepath.Ext(indexPath)
	return indexPath[:len(indexPath)-len(ext)] + ".sidecar.json"
}

func mapNotFound(err error, scope string) error {
	if errors.Is(err, database.ErrArtifactNotFound) {
		return apierr.New(apierr.KindNotFound, fmt.Sprintf("no sealed artifact for scope %s", scope))
	}
	return err
}
