package vault

import (
	"strings"
	"testing"
)

// TestNameRoundTripShort covers testable scenario S1.
func TestNameRoundTripShort(t *testing.T) {
	keys, err := newKeyMaterial()
	if err != nil {
		t.Fatalf("newKeyMaterial: %v", err)
	}
	siv, err := newSIVCipher(keys)
	if err != nil {
		t.Fatalf("newSIVCipher: %v", err)
	}

	const parent = DirID("")
	encoded, err := siv.encryptName("notes.txt", parent)
	if err != nil {
		t.Fatalf("encryptName: %v", err)
	}
	if len(encoded) > defaultShorteningThreshold {
		t.Fatalf("encoded length %d exceeds threshold for a short name", len(encoded))
	}

	decoded, err := siv.decryptName(encoded, parent, "")
	if err != nil {
		t.Fatalf("decryptName: %v", err)
	}
	if decoded != "notes.txt" {
		t.Fatalf("decoded = %q, want %q", decoded, "notes.txt")
	}
}

// TestNameShortening covers testable scenario S2: a long name's encoded
// form exceeds the default threshold and must be shortened.
func TestNameShortening(t *testing.T) {
	keys, err := newKeyMaterial()
	if err != nil {
		t.Fatalf("newKeyMaterial: %v", err)
	}
	siv, err := newSIVCipher(keys)
	if err != nil {
		t.Fatalf("newSIVCipher: %v", err)
	}

	longName := strings.Repeat("a", 180)
	parent := DirID(strings.Repeat("b", 36))

	entry, shortened, fullEncoded, err := siv.entryNameFor(longName, parent, defaultShorteningThreshold)
	if err != nil {
		t.Fatalf("entryNameFor: %v", err)
	}
	if !shortened {
		t.Fatal("expected shortening for a 180-byte name")
	}
	if entry != shortenedEntryName(fullEncoded) {
		t.Fatalf("entry name does not match shortenedEntryName(fullEncoded)")
	}

	decoded, err := siv.decryptName(fullEncoded, parent, "")
	if err != nil {
		t.Fatalf("decryptName on sidecar content: %v", err)
	}
	if decoded != longName {
		t.Fatalf("decoded = %q, want original long name", decoded)
	}
}

func TestDecodeEntryNameDispatch(t *testing.T) {
	encoded, shortened, err := decodeEntryName("abc.c9r", nil)
	if err != nil || shortened || encoded != "abc" {
		t.Fatalf("c9r dispatch: encoded=%q shortened=%v err=%v", encoded, shortened, err)
	}

	called := false
	encoded, shortened, err = decodeEntryName("xyz.c9s", func() (string, error) {
		called = true
		return "full-encoded", nil
	})
	if err != nil || !shortened || encoded != "full-encoded" || !called {
		t.Fatalf("c9s dispatch: encoded=%q shortened=%v called=%v err=%v", encoded, shortened, called, err)
	}
}
