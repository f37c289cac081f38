package hash

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file.bin")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestHash_Deterministic(t *testing.T) {
	path := writeTemp(t, []byte("hello world"))

	h1, err := Hash(path)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := Hash(path)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("expected deterministic hash, got %s then %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex digits, got %d", len(h1))
	}
}

func TestHash_DiffersOnContentChange(t *testing.T) {
	a := writeTemp(t, []byte("version one"))
	b := writeTemp(t, []byte("version two"))

	ha, err := Hash(a)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	hb, err := Hash(b)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if ha == hb {
		t.Error("expected different hashes for different content")
	}
}

func TestHash_SmallFileUsesWholeContent(t *testing.T) {
	// Two small files sharing a head but differing only past the short length
	// must still hash differently, since there is no "tail" window to miss it.
	a := writeTemp(t, []byte("short file content A"))
	b := writeTemp(t, []byte("short file content B"))
	h, err := Hash(a)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	hb, err := Hash(b)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h == "" {
		t.Error("expected non-empty hash")
	}
	if h == hb {
		t.Error("expected different hashes for small files differing only in their last byte")
	}
}

func TestHash_LargeFileIgnoresMiddleChanges(t *testing.T) {
	// A change strictly inside the middle region (beyond both head and tail
	// windows) of a large file is invisible to the fingerprint by design —
	// this is the deliberate head+tail+size tradeoff, not a bug.
	size := 3 * windowSize
	base := bytes.Repeat([]byte{'a'}, size)

	middle := make([]byte, size)
	copy(middle, base)
	middle[size/2] = 'z'

	pathA := writeTemp(t, base)
	pathB := writeTemp(t, middle)

	ha, err := Hash(pathA)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	hb, err := Hash(pathB)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if ha != hb {
		t.Error("expected identical hashes when only the untouched middle region differs")
	}
}

func TestHash_LargeFileDetectsHeadChange(t *testing.T) {
	size := 3 * windowSize
	base := bytes.Repeat([]byte{'a'}, size)

	changed := make([]byte, size)
	copy(changed, base)
	changed[0] = 'z'

	pathA := writeTemp(t, base)
	pathB := writeTemp(t, changed)

	ha, err := Hash(pathA)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	hb, err := Hash(pathB)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if ha == hb {
		t.Error("expected different hashes when the head window differs")
	}
}

func TestHash_DiffersOnSizeAlone(t *testing.T) {
	// Same head/tail bytes, different total size, must still differ since
	// size is folded into the digest.
	a := writeTemp(t, bytes.Repeat([]byte{'a'}, 10))
	b := writeTemp(t, bytes.Repeat([]byte{'a'}, 11))

	ha, err := Hash(a)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	hb, err := Hash(b)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if ha == hb {
		t.Error("expected hash to change when file size changes")
	}
}

func TestHash_MissingFile(t *testing.T) {
	_, err := Hash(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}
