package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sentryfleet/sentryfleet/internal/models"
)

var ErrArtifactNotFound = errors.New("index artifact not found")

// NextArtifactVersion atomically reserves the next version number for
// scope, inside the same transaction the caller uses to write the
// artifact row, so two concurrent compiles for the same scope can never
// claim the same version (spec section 4.2).
func (db *DB) NextArtifactVersion(ctx context.Context, tx *sql.Tx, scope string) (int64, error) {
	var version sql.NullInt64
	err := tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM index_artifacts WHERE scope = ?`, scope).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("acquire next artifact version: %w", err)
	}
	if !version.Valid {
		return 1, nil
	}
	return version.Int64 + 1, nil
}

// InsertArtifact writes a sealed IndexArtifact row inside tx, after the
// on-disk file has already been fsynced into place by the Compiler.
func (db *DB) InsertArtifact(ctx context.Context, tx *sql.Tx, a *models.IndexArtifact) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO index_artifacts (id, scope, version, record_count, hash, path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Scope, a.Version, a.RecordCount, a.Hash, a.Path, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// LatestArtifact returns the highest-version artifact for scope.
func (db *DB) LatestArtifact(ctx context.Context, scope string) (*models.IndexArtifact, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, scope, version, record_count, hash, path, created_at FROM index_artifacts
		 WHERE scope = ? ORDER BY version DESC LIMIT 1`, scope)
	return scanArtifact(row)
}

// ArtifactByVersion returns the artifact at an exact version.
func (db *DB) ArtifactByVersion(ctx context.Context, scope string, version int64) (*models.IndexArtifact, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, scope, version, record_count, hash, path, created_at FROM index_artifacts
		 WHERE scope = ? AND version = ?`, scope, version)
	return scanArtifact(row)
}

// ListArtifacts returns every artifact for scope, newest first.
func (db *DB) ListArtifacts(ctx context.Context, scope string) ([]*models.IndexArtifact, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, scope, version, record_count, hash, path, created_at FROM index_artifacts
		 WHERE scope = ? ORDER BY version DESC`, scope)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []*models.IndexArtifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ArtifactVersionsToPrune returns the versions of scope beyond the newest
// keep versions, the set the Compiler's retention sweep deletes both the
// row and the on-disk file for.
func (db *DB) ArtifactVersionsToPrune(ctx context.Context, scope string, keep int) ([]*models.IndexArtifact, error) {
	all, err := db.ListArtifacts(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(all) <= keep {
		return nil, nil
	}
	return all[keep:], nil
}

// DeleteArtifact removes an artifact's row. The caller is responsible for
// removing the on-disk file and sidecar.
func (db *DB) DeleteArtifact(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM index_artifacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

func scanArtifact(row rowScanner) (*models.IndexArtifact, error) {
	a := &models.IndexArtifact{}
	err := row.Scan(&a.ID, &a.Scope, &a.Version, &a.RecordCount, &a.Hash, &a.Path, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	return a, nil
}
