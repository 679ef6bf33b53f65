package pairing

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet_RoundTrips(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put("ABC123", "device-1", time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	deviceID, ok, err := s.Get("ABC123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected the code to resolve")
	}
	if deviceID != "device-1" {
		t.Errorf("expected device-1, got %q", deviceID)
	}
}

func TestGet_UnknownCodeIsNotFound(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.Get("does-not-exist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Error("expected an unknown code to report not found")
	}
}

func TestPut_OverwritesBeforeExpiry(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put("DEF456", "device-1", time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("DEF456", "device-2", time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	deviceID, ok, err := s.Get("DEF456")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || deviceID != "device-2" {
		t.Errorf("expected overwritten value device-2, got %q (ok=%v)", deviceID, ok)
	}
}

func TestDelete_PreventsReuse(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put("GHI789", "device-1", time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Delete("GHI789"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, ok, err := s.Get("GHI789")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Error("expected the deleted code to no longer resolve")
	}
}

func TestPut_ExpiresAfterTTL(t *testing.T) {
	s := newTestStore(t)

	if err := s.Put("JKL012", "device-1", 50*time.Millisecond); err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	_, ok, err := s.Get("JKL012")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Error("expected the code to have expired")
	}
}

func TestRunGC_NoRewriteIsNotAnError(t *testing.T) {
	s := newTestStore(t)

	if err := s.RunGC(0.5); err != nil {
		t.Fatalf("expected RunGC to tolerate having nothing to reclaim, got: %v", err)
	}
}
