package vault

import (
	"fmt"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const vaultConfigKeyIDHeader = "kid"
const vaultConfigKeyID = "masterkeyfile:" + masterKeyFileName

// vaultConfigClaims is the JWT payload of vault.cryptomator. It implements
// jwt.Claims via Valid, which also enforces the fixed vault format.
type vaultConfigClaims struct {
	Format              int    `json:"format"`
	ShorteningThreshold int    `json:"shorteningThreshold"`
	Jti                 string `json:"jti"`
	CipherCombo         string `json:"cipherCombo"`
}

func newVaultConfigClaims(shorteningThreshold int) vaultConfigClaims {
	return vaultConfigClaims{
		Format:              vaultFormat,
		ShorteningThreshold: shorteningThreshold,
		Jti:                 uuid.NewString(),
		CipherCombo:         cipherComboSivCtrMac,
	}
}

// Valid is called by jwt.ParseWithClaims and rejects anything but the one
// format/cipher combination this package supports.
func (c *vaultConfigClaims) Valid() error {
	if c.Format != vaultFormat {
		return fmt.Errorf("unsupported vault format: %d", c.Format)
	}
	if c.CipherCombo != cipherComboSivCtrMac {
		return fmt.Errorf("unsupported cipher combination: %s", c.CipherCombo)
	}
	return nil
}

// marshalVaultConfig signs claims with the 64-byte enc‖mac JWT key and
// returns the compact JWS token bytes for vault.cryptomator.
func marshalVaultConfig(claims vaultConfigClaims, keys keyMaterial) ([]byte, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	token.Header[vaultConfigKeyIDHeader] = vaultConfigKeyID
	signed, err := token.SignedString(keys.jwtKey())
	if err != nil {
		return nil, err
	}
	return []byte(signed), nil
}

// unmarshalVaultConfig parses and verifies a vault.cryptomator token
// against keys' JWT key. Only HS256 is accepted; spec §1 names JWT
// algorithm agility as a Non-goal, and open MUST reject any other alg —
// this is stricter than rclone's reference parser, which also allows
// HS384/HS512 (see DESIGN.md).
func unmarshalVaultConfig(data []byte, keys keyMaterial) (vaultConfigClaims, error) {
	var claims vaultConfigClaims
	_, err := jwt.ParseWithClaims(string(data), &claims, func(token *jwt.Token) (any, error) {
		return keys.jwtKey(), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return vaultConfigClaims{}, &InvalidSignatureError{Target: TargetVault, Err: err}
	}
	return claims, nil
}
