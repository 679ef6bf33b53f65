package database

import (
	"context"
	"errors"
	"testing"

	"github.com/sentryfleet/sentryfleet/internal/models"
)

func TestCreateTenant_RejectsDuplicateSlug(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := &models.Tenant{Slug: "acme", Name: "Acme Corp", IsActive: true}
	if err := db.CreateTenant(ctx, first); err != nil {
		t.Fatalf("create first tenant: %v", err)
	}
	if first.ID == "" {
		t.Error("expected ID to be minted")
	}

	second := &models.Tenant{Slug: "acme", Name: "Acme Corp Redux", IsActive: true}
	err := db.CreateTenant(ctx, second)
	if !errors.Is(err, ErrTenantSlugTaken) {
		t.Fatalf("expected ErrTenantSlugTaken, got %v", err)
	}
}

func TestGetTenantBySlug_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetTenantBySlug(context.Background(), "missing")
	if !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestListTenants_OrdersByCreation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := &models.Tenant{Slug: "a-corp", Name: "A Corp", IsActive: true}
	b := &models.Tenant{Slug: "b-corp", Name: "B Corp", IsActive: true}
	if err := db.CreateTenant(ctx, a); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if err := db.CreateTenant(ctx, b); err != nil {
		t.Fatalf("create b: %v", err)
	}

	tenants, err := db.ListTenants(ctx)
	if err != nil {
		t.Fatalf("list tenants: %v", err)
	}
	if len(tenants) != 2 {
		t.Fatalf("expected 2 tenants, got %d", len(tenants))
	}
	if tenants[0].Slug != "a-corp" || tenants[1].Slug != "b-corp" {
		t.Errorf("unexpected ordering: %s, %s", tenants[0].Slug, tenants[1].Slug)
	}
}
