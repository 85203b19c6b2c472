package vault

import (
	"crypto/aes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"strconv"

	aeswrap "github.com/NickBall/go-aes-key-wrap"
	"golang.org/x/crypto/scrypt"
)

const keySize = 32 // both EncryptKey and MacKey are 256 bits

// keyMaterial holds the two raw 256-bit keys that make up a vault's key
// hierarchy. Two different 64-byte concatenations are derived from it
// depending on purpose: sivKey() (mac‖enc) and jwtKey() (enc‖mac). Both
// orderings are required by the format and must not be unified; see
// DESIGN.md.
type keyMaterial struct {
	EncryptKey []byte
	MacKey     []byte
}

// newKeyMaterial generates a fresh random key pair for a new vault.
func newKeyMaterial() (keyMaterial, error) {
	var m keyMaterial
	m.EncryptKey = make([]byte, keySize)
	m.MacKey = make([]byte, keySize)
	if _, err := rand.Read(m.EncryptKey); err != nil {
		return keyMaterial{}, err
	}
	if _, err := rand.Read(m.MacKey); err != nil {
		return keyMaterial{}, err
	}
	return m, nil
}

// sivKey returns the 64-byte key used to initialize the AES-SIV-CMAC
// state: MAC half first, encryption half second.
func (m keyMaterial) sivKey() []byte {
	key := make([]byte, 0, 2*keySize)
	key = append(key, m.MacKey...)
	key = append(key, m.EncryptKey...)
	return key
}

// jwtKey returns the 64-byte key used to sign/verify the vault config
// JWT: encryption half first, MAC half second. The opposite order from
// sivKey — preserved exactly, not a bug.
func (m keyMaterial) jwtKey() []byte {
	key := make([]byte, 0, 2*keySize)
	key = append(key, m.EncryptKey...)
	key = append(key, m.MacKey...)
	return key
}

// zero overwrites a key buffer with zeros. Called on every transient
// buffer (KEK, raw keys) before it is dropped, per the zeroization
// discipline in spec §5.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// deriveKEK derives a 32-byte key-encryption key from a password and
// scrypt parameters. Callers must zero() the returned slice once the
// wrap/unwrap it was needed for completes.
func deriveKEK(password string, salt []byte, costParam, blockSize int) ([]byte, error) {
	return scrypt.Key([]byte(password), salt, costParam, blockSize, 1, keySize)
}

// wrapKey AES-KW wraps key under kek.
func wrapKey(kek, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	return aeswrap.Wrap(block, key)
}

// unwrapKey AES-KW unwraps wrapped under kek. A failure here always means
// the password (and therefore the derived kek) was wrong, or the document
// was corrupted/tampered with — both surface as DecryptionError(Vault) to
// the caller.
func unwrapKey(kek, wrapped []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	return aeswrap.Unwrap(block, wrapped)
}

// versionMAC computes HMAC-SHA256(macKey, utf8(format)) per spec §3/§8
// property 5. This follows spec.md literally rather than the upstream
// Cryptomator convention of MAC-ing the masterkey document's own binary
// version field; see DESIGN.md for the rationale.
func versionMAC(macKey []byte, format int) []byte {
	h := hmac.New(sha256.New, macKey)
	h.Write([]byte(strconv.Itoa(format)))
	return h.Sum(nil)
}
