package vault

import (
	"bytes"
	"testing"

	"github.com/golang-jwt/jwt/v4"
)

func TestVaultConfigRoundTrip(t *testing.T) {
	keys, err := newKeyMaterial()
	if err != nil {
		t.Fatalf("newKeyMaterial: %v", err)
	}

	claims := newVaultConfigClaims(defaultShorteningThreshold)
	token, err := marshalVaultConfig(claims, keys)
	if err != nil {
		t.Fatalf("marshalVaultConfig: %v", err)
	}

	got, err := unmarshalVaultConfig(token, keys)
	if err != nil {
		t.Fatalf("unmarshalVaultConfig: %v", err)
	}
	if got.Format != vaultFormat {
		t.Fatalf("format = %d, want %d", got.Format, vaultFormat)
	}
	if got.CipherCombo != cipherComboSivCtrMac {
		t.Fatalf("cipherCombo = %q, want %q", got.CipherCombo, cipherComboSivCtrMac)
	}
	if got.Jti != claims.Jti {
		t.Fatalf("jti mismatch: got %q want %q", got.Jti, claims.Jti)
	}
}

// TestVaultConfigTampered covers testable scenario S5: flipping a bit in
// the signature segment must fail verification with InvalidSignatureError.
func TestVaultConfigTampered(t *testing.T) {
	keys, err := newKeyMaterial()
	if err != nil {
		t.Fatalf("newKeyMaterial: %v", err)
	}
	claims := newVaultConfigClaims(defaultShorteningThreshold)
	token, err := marshalVaultConfig(claims, keys)
	if err != nil {
		t.Fatalf("marshalVaultConfig: %v", err)
	}

	tampered := make([]byte, len(token))
	copy(tampered, token)
	// The signature's first character carries six full data bits; its last
	// character also carries padding bits that base64url decoding ignores.
	sigStart := bytes.LastIndexByte(tampered, '.') + 1
	tampered[sigStart] ^= 0x01

	_, err = unmarshalVaultConfig(tampered, keys)
	if err == nil {
		t.Fatal("expected verification failure on tampered token")
	}
	if !IsInvalidSignatureError(err) {
		t.Fatalf("expected InvalidSignatureError, got %v (%T)", err, err)
	}
}

// TestVaultConfigWrongAlgorithmRejected covers the jwt.WithValidMethods
// guard in unmarshalVaultConfig: an HS384-signed token, even with a
// correct key and valid claims, must be rejected rather than verified.
func TestVaultConfigWrongAlgorithmRejected(t *testing.T) {
	keys, err := newKeyMaterial()
	if err != nil {
		t.Fatalf("newKeyMaterial: %v", err)
	}
	claims := newVaultConfigClaims(defaultShorteningThreshold)

	token := jwt.NewWithClaims(jwt.SigningMethodHS384, &claims)
	token.Header[vaultConfigKeyIDHeader] = vaultConfigKeyID
	signed, err := token.SignedString(keys.jwtKey())
	if err != nil {
		t.Fatalf("sign HS384 token: %v", err)
	}

	if _, err := unmarshalVaultConfig([]byte(signed), keys); err == nil {
		t.Fatal("expected HS384-signed token to be rejected")
	} else if !IsInvalidSignatureError(err) {
		t.Fatalf("expected InvalidSignatureError, got %v (%T)", err, err)
	}
}
