package vault

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/json"
	"fmt"
)

// masterkeyDocument is the on-storage JSON shape of masterkey.cryptomator.
// Field order is immaterial on read; this matches the wire format used by
// every Cryptomator implementation in the pack (see
// rclone-rclone/backend/cryptomator/masterkey.go, the direct grounding
// source for this struct).
type masterkeyDocument struct {
	ScryptSalt       []byte `json:"scryptSalt"`
	ScryptCostParam  int    `json:"scryptCostParam"`
	ScryptBlockSize  int    `json:"scryptBlockSize"`
	PrimaryMasterKey []byte `json:"primaryMasterKey"`
	HmacMasterKey    []byte `json:"hmacMasterKey"`
	Version          int    `json:"version"`
	VersionMac       []byte `json:"versionMac"`
}

// marshalMasterKey derives a fresh KEK from password and the document's
// scrypt parameters, wraps keys' two halves, computes the version MAC, and
// serializes the result as JSON. The caller-supplied keys are not
// consumed; this function zeroizes only its own transient KEK buffer.
func marshalMasterKey(keys keyMaterial, password string, costParam, blockSize int) ([]byte, error) {
	doc := masterkeyDocument{
		Version:         masterKeyVersion,
		ScryptCostParam: costParam,
		ScryptBlockSize: blockSize,
	}
	doc.ScryptSalt = make([]byte, scryptSaltSize)
	if _, err := rand.Read(doc.ScryptSalt); err != nil {
		return nil, err
	}

	kek, err := deriveKEK(password, doc.ScryptSalt, costParam, blockSize)
	if err != nil {
		return nil, err
	}
	defer zero(kek)

	doc.PrimaryMasterKey, err = wrapKey(kek, keys.EncryptKey)
	if err != nil {
		return nil, err
	}
	doc.HmacMasterKey, err = wrapKey(kek, keys.MacKey)
	if err != nil {
		return nil, err
	}
	doc.VersionMac = versionMAC(keys.MacKey, vaultFormat)

	return json.Marshal(doc)
}

// unmarshalMasterKey parses a masterkey.cryptomator document, derives the
// KEK from password and the document's own scrypt parameters, and
// unwraps both keys. A wrong password (or a tampered wrapped key) fails
// at the AES-KW unwrap step and is reported as DecryptionError(Vault),
// never progressing to JWT verification — see spec §4.1 and testable
// property S4.
func unmarshalMasterKey(data []byte, password string) (keyMaterial, error) {
	var doc masterkeyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return keyMaterial{}, &DecryptionError{Target: TargetVault, Err: fmt.Errorf("parse masterkey document: %w", err)}
	}

	kek, err := deriveKEK(password, doc.ScryptSalt, doc.ScryptCostParam, doc.ScryptBlockSize)
	if err != nil {
		return keyMaterial{}, err
	}
	defer zero(kek)

	var keys keyMaterial
	keys.EncryptKey, err = unwrapKey(kek, doc.PrimaryMasterKey)
	if err != nil {
		return keyMaterial{}, &DecryptionError{Target: TargetVault, Err: err}
	}
	keys.MacKey, err = unwrapKey(kek, doc.HmacMasterKey)
	if err != nil {
		zero(keys.EncryptKey)
		return keyMaterial{}, &DecryptionError{Target: TargetVault, Err: err}
	}

	if !verifyVersionMAC(keys.MacKey, doc.VersionMac) {
		zero(keys.EncryptKey)
		zero(keys.MacKey)
		return keyMaterial{}, &DecryptionError{Target: TargetVault, Err: fmt.Errorf("version MAC mismatch")}
	}

	return keys, nil
}

// verifyVersionMAC implements testable property 5:
// HMAC-SHA256(mac_key, utf8(format)) == masterkey.versionMac.
func verifyVersionMAC(macKey, got []byte) bool {
	want := versionMAC(macKey, vaultFormat)
	return hmac.Equal(want, got)
}
