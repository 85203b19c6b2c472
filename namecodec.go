package vault

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"

	"github.com/miscreant/miscreant.go"
)

// sivCipher wraps the AES-SIV-CMAC state shared by the name codec and the
// directory mapper. Initialized once per Vault from keys.sivKey()
// (mac‖enc — see keyhierarchy.go), grounded directly on
// rclone-rclone/backend/cryptomator/cryptor.go's Cryptor.
type sivCipher struct {
	siv *miscreant.Cipher
}

func newSIVCipher(keys keyMaterial) (*sivCipher, error) {
	c, err := miscreant.NewAESCMACSIV(keys.sivKey())
	if err != nil {
		return nil, err
	}
	return &sivCipher{siv: c}, nil
}

// encryptName encrypts name under AAD = parentID and returns the padded
// base64url encoding of the SIV ciphertext, per spec §4.3.
func (s *sivCipher) encryptName(name string, parentID DirID) (string, error) {
	ciphertext, err := s.siv.Seal(nil, []byte(name), []byte(parentID))
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// decryptName reverses encryptName. A failure (wrong key, wrong AAD, or
// tampered ciphertext) is reported as DecryptionError(ItemName, item).
func (s *sivCipher) decryptName(encoded string, parentID DirID, item ItemPath) (string, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", &DecryptionError{Target: TargetItemName, Item: item, Err: err}
	}
	plaintext, err := s.siv.Open(nil, ciphertext, []byte(parentID))
	if err != nil {
		return "", &DecryptionError{Target: TargetItemName, Item: item, Err: err}
	}
	return string(plaintext), nil
}

// shortenedEntryName computes the on-storage .c9s directory name for an
// already-encoded (base64url, padded) long name: base64url(sha1(encoded)).
// Grounded directly on spec §4.3 text — no pack example implements name
// shortening (rclone's cryptomator backend omits it entirely).
func shortenedEntryName(encoded string) string {
	sum := sha1.Sum([]byte(encoded))
	return base64.URLEncoding.EncodeToString(sum[:])
}

// entryNameFor returns the on-storage entry name (without its .c9r/.c9s
// suffix) for a logical name under parent, along with whether it needed
// shortening and, if so, the full encoded name to store in the name.c9s
// sidecar.
func (s *sivCipher) entryNameFor(name string, parentID DirID, shorteningThreshold int) (entry string, shortened bool, fullEncoded string, err error) {
	encoded, err := s.encryptName(name, parentID)
	if err != nil {
		return "", false, "", err
	}
	if len(encoded) > shorteningThreshold {
		return shortenedEntryName(encoded), true, encoded, nil
	}
	return encoded, false, "", nil
}

// decodeEntryName classifies an on-storage entry by its suffix and
// returns the still-encoded (base64url) name ready for decryptName. For
// .c9s entries, readSidecar supplies the content of the name.c9s file
// inside the entry.
func decodeEntryName(entryName string, readSidecar func() (string, error)) (encoded string, shortened bool, err error) {
	switch {
	case hasSuffix(entryName, c9rSuffix):
		return entryName[:len(entryName)-len(c9rSuffix)], false, nil
	case hasSuffix(entryName, c9sSuffix):
		full, err := readSidecar()
		if err != nil {
			return "", true, err
		}
		return full, true, nil
	default:
		return "", false, fmt.Errorf("unrecognized entry name %q", entryName)
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
