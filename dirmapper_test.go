package vault

import (
	"strings"
	"testing"
)

// TestRootPathDeterminism covers testable scenario S3: get_root_dir_path
// is deterministic for a given key, and differs between vaults with
// different keys.
func TestRootPathDeterminism(t *testing.T) {
	keys1, err := newKeyMaterial()
	if err != nil {
		t.Fatalf("newKeyMaterial: %v", err)
	}
	siv1, err := newSIVCipher(keys1)
	if err != nil {
		t.Fatalf("newSIVCipher: %v", err)
	}

	p1a, err := siv1.pathOfDirID("/vault", "")
	if err != nil {
		t.Fatalf("pathOfDirID: %v", err)
	}
	p1b, err := siv1.pathOfDirID("/vault", "")
	if err != nil {
		t.Fatalf("pathOfDirID: %v", err)
	}
	if p1a != p1b {
		t.Fatalf("root path not deterministic: %q != %q", p1a, p1b)
	}

	rest := strings.TrimPrefix(string(p1a), "/vault/d/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || len(parts[0]) != 2 {
		t.Fatalf("root path %q does not match /d/XX/REST shape", p1a)
	}

	keys2, err := newKeyMaterial()
	if err != nil {
		t.Fatalf("newKeyMaterial: %v", err)
	}
	siv2, err := newSIVCipher(keys2)
	if err != nil {
		t.Fatalf("newSIVCipher: %v", err)
	}
	p2, err := siv2.pathOfDirID("/vault", "")
	if err != nil {
		t.Fatalf("pathOfDirID: %v", err)
	}
	if p2 == p1a {
		t.Fatal("two vaults with different keys produced the same root path")
	}
}
