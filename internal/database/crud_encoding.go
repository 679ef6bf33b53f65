package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sentryfleet/sentryfleet/internal/models"
)

var (
	ErrMissingPersonNotFound = errors.New("missing person record not found")
	ErrLoyaltyMemberNotFound = errors.New("loyalty member record not found")
)

// UpsertMissingPerson inserts or updates a missing-person record, keyed on
// case_id.
func (db *DB) UpsertMissingPerson(ctx context.Context, m *models.MissingPerson) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO missing_persons (id, case_id, name, age_at_disappearance, disappearance_date, last_known_location, status, feature_vector, photo_path, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (case_id) DO UPDATE SET
		   name = EXCLUDED.name,
		   age_at_disappearance = EXCLUDED.age_at_disappearance,
		   disappearance_date = EXCLUDED.disappearance_date,
		   last_known_location = EXCLUDED.last_known_location,
		   status = EXCLUDED.status,
		   feature_vector = EXCLUDED.feature_vector,
		   photo_path = EXCLUDED.photo_path,
		   updated_at = CURRENT_TIMESTAMP`,
		m.ID, m.CaseID, m.Name, nullableInt(m.AgeAtDisappearance), m.DisappearanceDate, nullableString(m.LastKnownLocation), m.Status, m.FeatureVector, nullableString(m.PhotoPath),
	)
	if err != nil {
		return fmt.Errorf("upsert missing person: %w", err)
	}
	return nil
}

// ListActiveMissingPersons returns every active missing-person record, the
// input set the Compiler (C2) compiles for the missing_persons scope.
func (db *DB) ListActiveMissingPersons(ctx context.Context) ([]*models.MissingPerson, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, case_id, name, age_at_disappearance, disappearance_date, last_known_location, status, feature_vector, photo_path, created_at, updated_at
		 FROM missing_persons WHERE status = ? ORDER BY case_id`, models.MissingPersonStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active missing persons: %w", err)
	}
	defer rows.Close()

	var out []*models.MissingPerson
	for rows.Next() {
		m := &models.MissingPerson{}
		var age sql.NullInt64
		var disappearance sql.NullTime
		var location, photo sql.NullString
		if err := rows.Scan(&m.ID, &m.CaseID, &m.Name, &age, &disappearance, &location, &m.Status, &m.FeatureVector, &photo, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan missing person: %w", err)
		}
		if age.Valid {
			v := int(age.Int64)
			m.AgeAtDisappearance = &v
		}
		if disappearance.Valid {
			m.DisappearanceDate = &disappearance.Time
		}
		if location.Valid {
			m.LastKnownLocation = &location.String
		}
		if photo.Valid {
			m.PhotoPath = &photo.String
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertLoyaltyMember inserts or updates a tenant-scoped loyalty record,
// keyed on member_code.
func (db *DB) UpsertLoyaltyMember(ctx context.Context, l *models.LoyaltyMember) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO loyalty_members (id, tenant_id, member_code, name, email, phone, assigned_playlist_id, last_seen_at, last_seen_store, feature_vector, photo_path, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (member_code) DO UPDATE SET
		   name = EXCLUDED.name,
		   email = EXCLUDED.email,
		   phone = EXCLUDED.phone,
		   assigned_playlist_id = EXCLUDED.assigned_playlist_id,
		   last_seen_at = EXCLUDED.last_seen_at,
		   last_seen_store = EXCLUDED.last_seen_store,
		   feature_vector = EXCLUDED.feature_vector,
		   photo_path = EXCLUDED.photo_path,
		   updated_at = CURRENT_TIMESTAMP`,
		l.ID, l.TenantID, l.MemberCode, l.Name, nullableString(l.Email), nullableString(l.Phone), nullableString(l.AssignedPlaylistID), l.LastSeenAt, nullableString(l.LastSeenStore), l.FeatureVector, nullableString(l.PhotoPath),
	)
	if err != nil {
		return fmt.Errorf("upsert loyalty member: %w", err)
	}
	return nil
}

// ListLoyaltyMembersByTenant returns every loyalty record for tenantID,
// the input set the Compiler compiles for that tenant's loyalty scope.
func (db *DB) ListLoyaltyMembersByTenant(ctx context.Context, tenantID string) ([]*models.LoyaltyMember, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, tenant_id, member_code, name, email, phone, assigned_playlist_id, last_seen_at, last_seen_store, feature_vector, photo_path, created_at, updated_at
		 FROM loyalty_members WHERE tenant_id = ? ORDER BY member_code`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list loyalty members: %w", err)
	}
	defer rows.Close()

	var out []*models.LoyaltyMember
	for rows.Next() {
		l := &models.LoyaltyMember{}
		var email, phone, playlist, store, photo sql.NullString
		var lastSeen sql.NullTime
		if err := rows.Scan(&l.ID, &l.TenantID, &l.MemberCode, &l.Name, &email, &phone, &playlist, &lastSeen, &store, &l.FeatureVector, &photo, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan loyalty member: %w", err)
		}
		if email.Valid {
			l.Email = &email.String
		}
		if phone.Valid {
			l.Phone = &phone.String
		}
		if playlist.Valid {
			l.AssignedPlaylistID = &playlist.String
		}
		if store.Valid {
			l.LastSeenStore = &store.String
		}
		if photo.Valid {
			l.PhotoPath = &photo.String
		}
		if lastSeen.Valid {
			l.LastSeenAt = &lastSeen.Time
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
