// Package vault implements the core of a client-side encrypted vault
// compatible with the Cryptomator vault format (format version 8, cipher
// combination SIV_CTRMAC).
//
// # Overview
//
// vault provides the vault lifecycle (Create/Open), directory cryptography
// (deterministic directory-ID-to-path mapping, name encryption and
// shortening), and namespace operations (list, create, move, recursive
// delete) needed to read and write a Cryptomator-format-8 vault. It does not
// implement the file-content encryption pipeline or any storage backend;
// both are external collaborators behind thin interfaces (see DataProvider).
//
// # Key Hierarchy
//
// A vault is unlocked by deriving a key-encryption key from the user's
// password with scrypt, then using it to AES-KW unwrap two 256-bit keys
// (an encryption key and a MAC key) stored in masterkey.cryptomator. Those
// two keys are concatenated in two different orders depending on use:
// mac‖enc for the AES-SIV state that encrypts names and directory IDs,
// enc‖mac for the HS256 key that signs and verifies vault.cryptomator.
// Both orderings are intentional and must not be unified.
//
// # Basic Usage
//
//	v, err := vault.Create(context.Background(), provider, "/", "hunter2", vault.CreateOptions{Name: "myvault"})
//	if err != nil {
//	    panic(err)
//	}
//
//	root := v.RootDir()
//	child, err := v.CreateDirectory(context.Background(), "documents", root, vault.CreateDirectoryOptions{})
//	if err != nil {
//	    panic(err)
//	}
//
// # Security Considerations
//
// Protected against:
//   - Recovery of names or directory structure without the password
//   - Masterkey tampering (AES-KW unwrap authenticates)
//   - Vault config tampering (HS256 JWT signature)
//
// Not protected against (out of scope for this package):
//   - File content confidentiality/integrity (external content cipher)
//   - Storage backend availability or concurrent external mutation
//   - Side-channel attacks on the host process
package vault
