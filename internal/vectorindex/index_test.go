package vectorindex

import (
	"os"
	"path/filepath"
	"testing"
)

func buildTestIndex(t *testing.T, vectors [][]float32) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.index")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create index file: %v", err)
	}
	defer f.Close()

	if err := Build(f, len(vectors[0]), vectors); err != nil {
		t.Fatalf("build index: %v", err)
	}
	return path
}

func TestBuild_RejectsMismatchedWidth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.index")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer f.Close()

	err = Build(f, 3, [][]float32{{1, 2, 3}, {1, 2}})
	if err == nil {
		t.Fatal("expected an error for a mismatched vector width")
	}
}

func TestOpen_ReadsHeaderAndVectors(t *testing.T) {
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	path := buildTestIndex(t, vectors)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	if r.RecordCount() != len(vectors) {
		t.Errorf("expected record count %d, got %d", len(vectors), r.RecordCount())
	}
	if r.FeatureDim() != 3 {
		t.Errorf("expected feature dim 3, got %d", r.FeatureDim())
	}

	for i, want := range vectors {
		got, err := r.VectorAt(i)
		if err != nil {
			t.Fatalf("vector at %d: %v", i, err)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Errorf("row %d: expected %v, got %v", i, want, got)
			}
		}
	}
}

func TestOpen_RejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.index")
	if err := os.WriteFile(path, []byte("not a compiled index file at all"), 0o644); err != nil {
		t.Fatalf("write garbage file: %v", err)
	}

	if _, err := Open(path); err == nil {
		t.Fatal("expected an error opening a file with no valid header")
	}
}

func TestVectorAt_OutOfRange(t *testing.T) {
	path := buildTestIndex(t, [][]float32{{1, 2}})

	r, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	if _, err := r.VectorAt(5); err == nil {
		t.Fatal("expected an out-of-range error")
	}
}

func TestNearestNeighbors_RanksByCosineSimilarity(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0}, // idx 0: orthogonal to query
		{0, 1, 0}, // idx 1: exact match
		{0, 0.9, 0.1}, // idx 2: close second
	}
	path := buildTestIndex(t, vectors)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	got, err := r.NearestNeighbors([]float32{0, 1, 0}, 2)
	if err != nil {
		t.Fatalf("nearest neighbors: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0] != 1 {
		t.Errorf("expected the exact match (idx 1) to rank first, got %d", got[0])
	}
	if got[1] != 2 {
		t.Errorf("expected idx 2 to rank second, got %d", got[1])
	}
}

func TestNearestNeighbors_RejectsMismatchedQueryWidth(t *testing.T) {
	path := buildTestIndex(t, [][]float32{{1, 2, 3}})

	r, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	if _, err := r.NearestNeighbors([]float32{1, 2}, 1); err == nil {
		t.Fatal("expected an error for a query width mismatch")
	}
}

func TestHash_IsStableForIdenticalContent(t *testing.T) {
	path := buildTestIndex(t, [][]float32{{1, 2, 3}})

	h1, err := Hash(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := Hash(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("expected a stable hash, got %q then %q", h1, h2)
	}
	if h1 == "" {
		t.Error("expected a non-empty hash")
	}
}
