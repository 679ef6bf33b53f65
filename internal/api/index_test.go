package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompileMissingPersons_InlineEmptyScope(t *testing.T) {
	h := newTestHandler(t)
	router := NewRouter(h).Setup()

	req := httptest.NewRequest(http.MethodPost, "/missing_persons/compile", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// No queue is wired, so the compile runs inline; with zero eligible
	// records it surfaces apierr.KindEmptyScope as a 400 rather than the
	// normal 202-accepted shape.
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty scope, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMissingPersonsLatest_NoArtifactIsNotFound(t *testing.T) {
	h := newTestHandler(t)
	router := NewRouter(h).Setup()

	req := httptest.NewRequest(http.MethodGet, "/missing_persons/database/latest", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when no artifact has been sealed, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLoyaltyLatest_NoArtifactIsNotFound(t *testing.T) {
	h := newTestHandler(t)
	router := NewRouter(h).Setup()

	req := httptest.NewRequest(http.MethodGet, "/tenants/tenant-1/loyalty/database/latest", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when no artifact has been sealed, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMissingPersonsDownload_NoArtifactIsNotFound(t *testing.T) {
	h := newTestHandler(t)
	router := NewRouter(h).Setup()

	req := httptest.NewRequest(http.MethodGet, "/missing_persons/database/download", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when no artifact has been sealed, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMissingPersonsDownloadMetadata_NoArtifactIsNotFound(t *testing.T) {
	h := newTestHandler(t)
	router := NewRouter(h).Setup()

	req := httptest.NewRequest(http.MethodGet, "/missing_persons/database/download/metadata", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when no artifact has been sealed, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
}
