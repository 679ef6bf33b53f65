// Package vectorindex implements the on-disk exact-nearest-neighbor index
// format compiled by internal/compiler and queried by edge devices. No
// library in the example corpus offers a pure-Go, CGo-free vector index
// (the one faiss binding present in the corpus wraps a native library and
// serves full-text search, not this format); the format and its brute-force
// scan are implemented directly rather than pulled in a mismatched
// dependency. See DESIGN.md for the full justification.
package vectorindex

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// magic identifies a compiled index file; version allows the on-disk
// layout to change without breaking older artifacts silently.
const (
	magic       uint32 = 0x53465831 // "SFX1"
	formatVersion uint32 = 1
)

// Header is the fixed-size prefix of every compiled index file.
type Header struct {
	Magic       uint32
	Version     uint32
	FeatureDim  uint32
	RecordCount uint32
}

// Build writes a compiled index file to w: a header, followed by
// RecordCount float32-vectors of width dim, each written row 0..N-1 in the
// order supplied by vectors. The caller is responsible for writing to a
// temp path and renaming into place atomically.
func Build(w io.Writer, dim int, vectors [][]float32) error {
	bw := bufio.NewWriter(w)

	hdr := Header{
		Magic:       magic,
		Version:     formatVersion,
		FeatureDim:  uint32(dim),
		RecordCount: uint32(len(vectors)),
	}
	if err := binary.Write(bw, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("write index header: %w", err)
	}

	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has width %d, expected %d", i, len(v), dim)
		}
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write vector %d: %w", i, err)
		}
	}

	return bw.Flush()
}

// Hash computes the sha256 hash of a file already written to disk, the
// value sealed into the IndexArtifact row.
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Reader provides read-only access to a compiled index file for brute-force
// nearest-neighbor scans, the fallback exact search the control plane uses
// to validate a compiled artifact before sealing it (the edge runtime's
// own search path is out of scope per spec section 1).
type Reader struct {
	f   *os.File
	hdr Header
}

// Open opens a compiled index file and validates its header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}

	var hdr Header
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("read index header: %w", err)
	}
	if hdr.Magic != magic {
		f.Close()
		return nil, fmt.Errorf("index %s: bad magic %x", path, hdr.Magic)
	}
	if hdr.Version != formatVersion {
		f.Close()
		return nil, fmt.Errorf("index %s: unsupported format version %d", path, hdr.Version)
	}

	return &Reader{f: f, hdr: hdr}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.f.Close() }

// RecordCount returns the number of vectors in the index.
func (r *Reader) RecordCount() int { return int(r.hdr.RecordCount) }

// FeatureDim returns the width every vector in the index shares.
func (r *Reader) FeatureDim() int { return int(r.hdr.FeatureDim) }

// VectorAt reads the vector at row idx (0-based).
func (r *Reader) VectorAt(idx int) ([]float32, error) {
	if idx < 0 || idx >= int(r.hdr.RecordCount) {
		return nil, fmt.Errorf("index row %d out of range [0,%d)", idx, r.hdr.RecordCount)
	}
	rowBytes := int64(r.hdr.FeatureDim) * 4
	offset := int64(binary.Size(r.hdr)) + int64(idx)*rowBytes

	v := make([]float32, r.hdr.FeatureDim)
	section := io.NewSectionReader(r.f, offset, rowBytes)
	if err := binary.Read(section, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("read row %d: %w", idx, err)
	}
	return v, nil
}

// NearestNeighbors performs an exact brute-force cosine-distance scan
// against every row and returns the k closest indices, nearest first.
func (r *Reader) NearestNeighbors(query []float32, k int) ([]int, error) {
	if len(query) != int(r.hdr.FeatureDim) {
		return nil, fmt.Errorf("query width %d does not match index width %d", len(query), r.hdr.FeatureDim)
	}

	scores := make([]scoredRow, 0, r.hdr.RecordCount)
	for i := 0; i < int(r.hdr.RecordCount); i++ {
		v, err := r.VectorAt(i)
		if err != nil {
			return nil, err
		}
		scores = append(scores, scoredRow{idx: i, score: cosineSimilarity(query, v)})
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if k > len(scores) {
		k = len(scores)
	}
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = scores[i].idx
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type scoredRow struct {
	idx   int
	score float64
}
