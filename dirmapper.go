package vault

import (
	"crypto/sha1"
	"encoding/base32"
	"path"
)

// pathOfDirID computes the on-storage path for a directory ID, per
// spec §4.4: storage_root + "/d/" + H[0..2] + "/" + H[2..], where
// H = base32(sha1(AES-SIV-seal(key, aad=[], plaintext=utf8(dirID)))).
// Grounded on rclone-rclone/backend/cryptomator/cryptor.go's EncryptDirID
// plus cryptomator.go's dirIDPath path join.
func (s *sivCipher) pathOfDirID(storageRoot ItemPath, dirID DirID) (ItemPath, error) {
	ciphertext, err := s.siv.Seal(nil, []byte(dirID))
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(ciphertext)
	encoded := base32.StdEncoding.EncodeToString(sum[:])
	return ItemPath(path.Join(string(storageRoot), dirStorageDirName, encoded[:2], encoded[2:])), nil
}
