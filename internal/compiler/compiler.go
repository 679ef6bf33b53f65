// Package compiler implements the Index Compiler (C2): it turns the
// mutable encoding-record tables into an immutable, hash-sealed
// IndexArtifact, one per scope per compile, following the same
// write-temp/fsync/rename discipline the teacher's WAL package uses for
// crash-safe persistence.
package compiler

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sentryfleet/sentryfleet/internal/apierr"
	"github.com/sentryfleet/sentryfleet/internal/database"
	"github.com/sentryfleet/sentryfleet/internal/logging"
	"github.com/sentryfleet/sentryfleet/internal/models"
	"github.com/sentryfleet/sentryfleet/internal/vectorindex"
)

// Compiler builds and seals IndexArtifacts for the missing_persons scope
// and per-tenant loyalty scopes.
type Compiler struct {
	db         *database.DB
	artifactDir string
	featureDim int
	keepVersions int
}

// New constructs a Compiler that writes artifacts under artifactDir.
func New(db *database.DB, artifactDir string, featureDim, keepVersions int) *Compiler {
	return &Compiler{
		db:           db,
		artifactDir:  artifactDir,
		featureDim:   featureDim,
		keepVersions: keepVersions,
	}
}

// CompileMissingPersons compiles the global missing_persons scope from
// every active MissingPerson record with a usable photo.
func (c *Compiler) CompileMissingPersons(ctx context.Context) (*models.IndexArtifact, error) {
	people, err := c.db.ListActiveMissingPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active missing persons: %w", err)
	}

	compilables := make([]models.Compilable, 0, len(people))
	for _, p := range people {
		compilables = append(compilables, p)
	}

	return c.compile(ctx, models.MissingPersonsScope, compilables)
}

// CompileLoyalty compiles the per-tenant loyalty scope for tenantID from
// every loyalty member with a usable photo.
func (c *Compiler) CompileLoyalty(ctx context.Context, tenantID string) (*models.IndexArtifact, error) {
	members, err := c.db.ListLoyaltyMembersByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list loyalty members for tenant %s: %w", tenantID, err)
	}

	compilables := make([]models.Compilable, 0, len(members))
	for _, m := range members {
		compilables = append(compilables, m)
	}

	return c.compile(ctx, models.LoyaltyScope(tenantID), compilables)
}

// compile is the shared pipeline: filter records without usable photos,
// reject inconsistent vector widths, fail on an empty eligible set, order
// deterministically by record id, write the index and sidecar files, hash
// the index, and seal the artifact row transactionally with the version
// that was reserved for it.
func (c *Compiler) compile(ctx context.Context, scope string, records []models.Compilable) (*models.IndexArtifact, error) {
	eligible := make([]models.Compilable, 0, len(records))
	for _, r := range records {
		if !r.HasUsablePhoto() {
			continue
		}
		if !models.ValidVectorWidth(r.Vector(), c.featureDim) {
			return nil, apierr.New(apierr.KindVectorDimensionMismatch,
				fmt.Sprintf("record %s has vector width %d, expected %d", r.RecordID(), len(r.Vector()), c.featureDim*4))
		}
		eligible = append(eligible, r)
	}

	if len(eligible) == 0 {
		return nil, apierr.New(apierr.KindEmptyScope, fmt.Sprintf("scope %s has no eligible records to compile", scope))
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].RecordID() < eligible[j].RecordID()
	})

	vectors := make([][]float32, len(eligible))
	sidecarRecords := make([]models.SidecarRecord, len(eligible))
	for i, r := range eligible {
		vectors[i] = bytesToFloat32(r.Vector())
		sidecarRecords[i] = models.SidecarRecord{
			Idx:      i,
			ID:       r.RecordID(),
			Metadata: r.DisplayMetadata(),
		}
	}

	var artifact *models.IndexArtifact
	err := c.db.WithTx(ctx, func(tx *sql.Tx) error {
		version, err := c.db.NextArtifactVersion(ctx, tx, scope)
		if err != nil {
			return err
		}

		indexPath, sidecarPath, hash, err := c.writeFiles(scope, version, vectors, sidecarRecords)
		if err != nil {
			return err
		}

		artifact = &models.IndexArtifact{
			ID:          uuid.New().String(),
			Scope:       scope,
			Version:     version,
			RecordCount: len(eligible),
			Hash:        hash,
			Path:        indexPath,
			CreatedAt:   time.Now().UTC(),
		}
		_ = sidecarPath

		return c.db.InsertArtifact(ctx, tx, artifact)
	})
	if err != nil {
		return nil, err
	}

	if err := c.prune(ctx, scope); err != nil {
		logging.Warn().Err(err).Str("scope", scope).Msg("artifact retention prune failed")
	}

	return artifact, nil
}

// writeFiles writes the index and its JSON sidecar under a temp name,
// fsyncs, then renames both into place, and returns the hash of the
// sealed index file.
func (c *Compiler) writeFiles(scope string, version int64, vectors [][]float32, records []models.SidecarRecord) (indexPath, sidecarPath string, hash string, err error) {
	scopeDir := filepath.Join(c.artifactDir, sanitizeScope(scope))
	if err := os.MkdirAll(scopeDir, 0o750); err != nil {
		return "", "", "", fmt.Errorf("create artifact scope dir: %w", err)
	}

	indexPath = filepath.Join(scopeDir, fmt.Sprintf("v%d.idx", version))
	sidecarPath = filepath.Join(scopeDir, fmt.Sprintf("v%d.sidecar.json", version))

	if err := atomicWriteIndex(indexPath, len(vectors[0]), vectors); err != nil {
		return "", "", "", err
	}

	hash, err = vectorindex.Hash(indexPath)
	if err != nil {
		return "", "", "", err
	}

	sidecar := models.Sidecar{
		Version:     version,
		Scope:       scope,
		RecordCount: len(records),
		Hash:        hash,
		CompiledAt:  time.Now().UTC(),
		Records:     records,
	}
	if err := atomicWriteSidecar(sidecarPath, &sidecar); err != nil {
		return "", "", "", err
	}

	return indexPath, sidecarPath, hash, nil
}

func atomicWriteIndex(path string, dim int, vectors [][]float32) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open temp index file: %w", err)
	}

	if err := vectorindex.Build(f, dim, vectors); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fsync temp index file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename index file into place: %w", err)
	}
	return nil
}

func atomicWriteSidecar(path string, sidecar *models.Sidecar) error {
	tmp := path + ".tmp"
	data, err := json.Marshal(sidecar)
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open temp sidecar file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write sidecar: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fsync temp sidecar file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp sidecar file: %w", err)
	}
	return os.Rename(tmp, path)
}

// prune removes artifact rows and files beyond the configured retention
// window for scope.
func (c *Compiler) prune(ctx context.Context, scope string) error {
	stale, err := c.db.ArtifactVersionsToPrune(ctx, scope, c.keepVersions)
	if err != nil {
		return err
	}
	for _, a := range stale {
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("path", a.Path).Msg("failed to remove pruned artifact file")
		}
		sidecarPath := sidecarPathFor(a.Path)
		if err := os.Remove(sidecarPath); err != nil && !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("path", sidecarPath).Msg("failed to remove pruned sidecar file")
		}
		if err := c.db.DeleteArtifact(ctx, a.ID); err != nil {
			return err
		}
	}
	return nil
}

func sidecarPathFor(indexPath string) string {
	ext := filepath.Ext(indexPath)
	return indexPath[:len(indexPath)-len(ext)] + ".sidecar.json"
}

func sanitizeScope(scope string) string {
	out := make([]byte, 0, len(scope))
	for i := 0; i < len(scope); i++ {
		c := scope[i]
		if c == ':' || c == '/' {
			out = append(out, '_')
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

func bytesToFloat32(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(b[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
