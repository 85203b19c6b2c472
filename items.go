package vault

import (
	"context"
	"path"
	"sync"
)

// EncryptedItem is implemented by EncryptedDir and EncryptedFile so
// ListItems can return a single, order-preserving slice of either kind,
// matching spec §4.5's list_items.
type EncryptedItem interface {
	Name() string
	FullName() ItemPath
}

// EncryptedDir is a handle tying a logical directory name to its
// on-storage entry and parent DirID. Handles hold no locks and reflect
// the state at construction; any mutation (CreateDirectory under it,
// Move, DeleteDir) invalidates it per spec §3 — callers must discard and
// relist rather than reuse a handle after a mutating call.
type EncryptedDir struct {
	vault         *Vault
	storedName    string
	fullName      ItemPath
	decryptedName string
	parentID      *DirID
	lastMod       int64
	shortened     bool

	mu         sync.Mutex
	dirIDCache *DirID
}

// Name returns the decrypted logical name.
func (d *EncryptedDir) Name() string { return d.decryptedName }

// FullName returns the storage path of the directory's entry.
func (d *EncryptedDir) FullName() ItemPath { return d.fullName }

// IsRoot reports whether this handle is the vault root.
func (d *EncryptedDir) IsRoot() bool { return d.parentID == nil }

// GetDirID resolves this directory's DirID, reading dir.c9r from storage
// on first use and caching the result. clearCache forces a re-read.
// Root always returns the empty DirID without touching storage. Per
// spec §5, concurrent calls may race on the cache but are idempotent —
// the mutex below only protects the Go memory model, not the semantics.
func (d *EncryptedDir) GetDirID(ctx context.Context, clearCache bool) (DirID, error) {
	if d.parentID == nil {
		return "", nil
	}

	d.mu.Lock()
	if clearCache {
		d.dirIDCache = nil
	}
	if d.dirIDCache != nil {
		id := *d.dirIDCache
		d.mu.Unlock()
		return id, nil
	}
	d.mu.Unlock()

	dirIDPath := ItemPath(path.Join(string(d.fullName), dirIDEntryName))
	raw, err := d.vault.provider.ReadFileString(ctx, dirIDPath)
	if err != nil {
		return "", NewProviderError("read_file_string", dirIDPath, err)
	}
	id := DirID(raw)

	d.mu.Lock()
	d.dirIDCache = &id
	d.mu.Unlock()

	return id, nil
}

// Move relocates this directory's entry under a new parent, re-encrypting
// its name under the new parent's DirID. The directory's own DirID (and
// therefore its DirID-mapped backing storage) is untouched — only the
// entry pointer moves. See SPEC_FULL.md §4.8. The handle is invalidated
// afterward; callers must relist to obtain a fresh one.
func (d *EncryptedDir) Move(ctx context.Context, newName string, destParent *EncryptedDir) error {
	if err := validateName(newName); err != nil {
		return err
	}
	dirID, err := d.GetDirID(ctx, false)
	if err != nil {
		return err
	}
	destParentID, err := destParent.GetDirID(ctx, false)
	if err != nil {
		return err
	}

	newFullName, _, shortened, fullEncoded, err := d.vault.materializeEntryPath(ctx, newName, destParentID, destParent.fullName)
	if err != nil {
		return err
	}

	if err := d.vault.provider.CreateDir(ctx, newFullName, true); err != nil {
		return NewProviderError("create_dir", newFullName, err)
	}
	if err := d.vault.provider.WriteFile(ctx, ItemPath(path.Join(string(newFullName), dirIDEntryName)), string(dirID)); err != nil {
		return NewProviderError("write_file", newFullName, err)
	}
	if shortened {
		if err := d.vault.provider.WriteFile(ctx, ItemPath(path.Join(string(newFullName), longNameSidecarName)), fullEncoded); err != nil {
			return NewProviderError("write_file", newFullName, err)
		}
	}

	if err := d.vault.provider.RemoveDir(ctx, d.fullName); err != nil {
		return NewProviderError("remove_dir", d.fullName, err)
	}
	return nil
}

// EncryptedFile is a handle tying a logical file name to its on-storage
// entry and parent DirID. The file's content is opaque to this package;
// see spec §1/§6.
type EncryptedFile struct {
	vault         *Vault
	storedName    string
	fullName      ItemPath
	decryptedName string
	parentID      DirID
	lastMod       int64
	shortened     bool
}

// Name returns the decrypted logical name.
func (f *EncryptedFile) Name() string { return f.decryptedName }

// FullName returns the storage path of the file's entry.
func (f *EncryptedFile) FullName() ItemPath { return f.fullName }

// Move relocates this file's entry under a new parent. Because the file
// body is opaque to this package, Move treats it as an opaque string blob
// and relocates contents.c9r verbatim via DataProvider's string-based
// WriteFile/ReadFileString contract; this is a convenience for small
// bodies exercised through this package's own thin contract, not a
// substitute for a real content-aware mover. See SPEC_FULL.md §4.8.
func (f *EncryptedFile) Move(ctx context.Context, newName string, destParent *EncryptedDir) error {
	if err := validateName(newName); err != nil {
		return err
	}
	destParentID, err := destParent.GetDirID(ctx, false)
	if err != nil {
		return err
	}

	newFullName, _, shortened, fullEncoded, err := f.vault.materializeEntryPath(ctx, newName, destParentID, destParent.fullName)
	if err != nil {
		return err
	}

	contentsPath := ItemPath(path.Join(string(f.fullName), contentsEntryName))
	exists, err := f.vault.provider.Exists(ctx, contentsPath)
	if err != nil {
		return NewProviderError("exists", contentsPath, err)
	}

	if err := f.vault.provider.CreateDir(ctx, newFullName, true); err != nil {
		return NewProviderError("create_dir", newFullName, err)
	}
	if shortened {
		if err := f.vault.provider.WriteFile(ctx, ItemPath(path.Join(string(newFullName), longNameSidecarName)), fullEncoded); err != nil {
			return NewProviderError("write_file", newFullName, err)
		}
	}
	if exists {
		data, err := f.vault.provider.ReadFileString(ctx, contentsPath)
		if err != nil {
			return NewProviderError("read_file_string", contentsPath, err)
		}
		if err := f.vault.provider.WriteFile(ctx, ItemPath(path.Join(string(newFullName), contentsEntryName)), data); err != nil {
			return NewProviderError("write_file", newFullName, err)
		}
	}

	if err := f.vault.provider.RemoveDir(ctx, f.fullName); err != nil {
		return NewProviderError("remove_dir", f.fullName, err)
	}
	return nil
}
