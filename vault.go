package vault

import (
	"context"
	"fmt"
	"path"
	"sync/atomic"

	"github.com/google/uuid"
)

// Vault composes the key hierarchy, masterkey and vault-config documents,
// name codec, and directory mapper (C1-C5) with a DataProvider, exposing
// the namespace operations in spec §4.5. It is immutable after
// construction: its two live keys are read-only for the life of the
// vault, so no synchronization is needed to read them concurrently (spec
// §5). The only mutable state anywhere in this package is
// EncryptedDir.dirIDCache.
type Vault struct {
	storageRoot ItemPath
	name        string
	keys        keyMaterial
	siv         *sivCipher
	settings    Settings
	query       QueryOptions
	provider    DataProvider
}

// Settings returns the vault's format/shortening/cipher parameters.
func (v *Vault) Settings() Settings { return v.settings }

// StorageRoot returns the storage-side directory containing
// vault.cryptomator, masterkey.cryptomator, and d/.
func (v *Vault) StorageRoot() ItemPath { return v.storageRoot }

// Name returns the vault's display name.
func (v *Vault) Name() string { return v.name }

// RootDir returns a handle for the vault root. Its DirID is always the
// empty string and never touches storage.
func (v *Vault) RootDir() *EncryptedDir {
	return &EncryptedDir{
		vault:         v,
		storedName:    "",
		fullName:      v.storageRoot,
		decryptedName: "root",
		parentID:      nil,
	}
}

// Create bootstraps a new vault under dir. See spec §4.5 for the full
// create contract, including the two layout options and the ordered
// progress callbacks.
func Create(ctx context.Context, provider DataProvider, dir ItemPath, password string, opts CreateOptions) (*Vault, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if !opts.CreateHere && opts.Name == "" {
		return nil, ErrNoLayout
	}

	shorteningThreshold := opts.ShorteningThreshold
	if shorteningThreshold == 0 {
		shorteningThreshold = defaultShorteningThreshold
	}
	costParam := opts.ScryptCostParam
	if costParam == 0 {
		costParam = defaultScryptCostParam
	}
	blockSize := opts.ScryptBlockSize
	if blockSize == 0 {
		blockSize = defaultScryptBlockSize
	}
	if err := validateScryptParams(costParam, blockSize); err != nil {
		return nil, err
	}
	query := opts.Query
	if query.Concurrency == 0 {
		query = DefaultQueryOptions()
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	root := dir
	name := opts.Name
	if !opts.CreateHere {
		root = ItemPath(path.Join(string(dir), opts.Name))
	} else {
		name = path.Base(string(dir))
	}

	report := func(step CreationStep) {
		if opts.OnProgress != nil {
			opts.OnProgress(step)
		}
	}

	report(StepDupeCheck)
	if err := checkCreateTargetsAbsent(ctx, provider, root, opts.CreateHere); err != nil {
		return nil, err
	}

	report(StepKeyGen)
	keys, err := newKeyMaterial()
	if err != nil {
		return nil, err
	}
	created := false
	defer func() {
		if !created {
			zero(keys.EncryptKey)
			zero(keys.MacKey)
		}
	}()

	masterKeyDoc, err := marshalMasterKey(keys, password, costParam, blockSize)
	if err != nil {
		zero(keys.EncryptKey)
		zero(keys.MacKey)
		return nil, err
	}

	claims := newVaultConfigClaims(shorteningThreshold)
	configDoc, err := marshalVaultConfig(claims, keys)
	if err != nil {
		zero(keys.EncryptKey)
		zero(keys.MacKey)
		return nil, err
	}

	siv, err := newSIVCipher(keys)
	if err != nil {
		zero(keys.EncryptKey)
		zero(keys.MacKey)
		return nil, err
	}

	report(StepCreatingFiles)
	masterKeyPath := ItemPath(path.Join(string(root), masterKeyFileName))
	configPath := ItemPath(path.Join(string(root), configFileName))
	dPath := ItemPath(path.Join(string(root), dirStorageDirName))

	cleanup := func() {
		settleAll(
			func() error { return provider.RemoveFile(ctx, masterKeyPath) },
			func() error { return provider.RemoveFile(ctx, configPath) },
			func() error { return provider.RemoveDir(ctx, dPath) },
		)
	}

	if !opts.CreateHere {
		if err := provider.CreateDir(ctx, root, true); err != nil {
			return nil, NewProviderError("create_dir", root, err)
		}
	}
	if err := provider.WriteFile(ctx, masterKeyPath, string(masterKeyDoc)); err != nil {
		cleanup()
		return nil, NewProviderError("write_file", masterKeyPath, err)
	}
	if err := provider.WriteFile(ctx, configPath, string(configDoc)); err != nil {
		cleanup()
		return nil, NewProviderError("write_file", configPath, err)
	}
	if err := provider.CreateDir(ctx, dPath, true); err != nil {
		cleanup()
		return nil, NewProviderError("create_dir", dPath, err)
	}

	report(StepCreatingRoot)
	v := &Vault{
		storageRoot: root,
		name:        name,
		keys:        keys,
		siv:         siv,
		settings: Settings{
			Format:              claims.Format,
			ShorteningThreshold: claims.ShorteningThreshold,
			CipherCombo:         claims.CipherCombo,
		},
		query:    query,
		provider: provider,
	}

	rootDirPath, err := siv.pathOfDirID(root, "")
	if err != nil {
		cleanup()
		return nil, err
	}
	if err := provider.CreateDir(ctx, rootDirPath, true); err != nil {
		cleanup()
		return nil, NewProviderError("create_dir", rootDirPath, err)
	}

	created = true
	return v, nil
}

// checkCreateTargetsAbsent implements the two forms of create's
// dupe-check (spec §4.5): with a name, only the new subdirectory must be
// absent; with create_here, all three eventual artifacts must be absent,
// checked concurrently.
func checkCreateTargetsAbsent(ctx context.Context, provider DataProvider, root ItemPath, createHere bool) error {
	if !createHere {
		exists, err := provider.Exists(ctx, root)
		if err != nil {
			return NewProviderError("exists", root, err)
		}
		if exists {
			return &ExistsError{Path: root}
		}
		return nil
	}

	targets := []ItemPath{
		ItemPath(path.Join(string(root), masterKeyFileName)),
		ItemPath(path.Join(string(root), configFileName)),
		ItemPath(path.Join(string(root), dirStorageDirName)),
	}
	results, err := runBatched(targets, -1, func(p ItemPath) (bool, error) {
		exists, err := provider.Exists(ctx, p)
		if err != nil {
			return false, NewProviderError("exists", p, err)
		}
		return exists, nil
	})
	if err != nil {
		return err
	}
	for i, exists := range results {
		if exists {
			return &ExistsError{Path: targets[i]}
		}
	}
	return nil
}

// Open unlocks an existing vault under dir. See spec §4.1 for the
// unwrap/verify error contract.
func Open(ctx context.Context, provider DataProvider, dir ItemPath, password string, opts OpenOptions) (*Vault, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	query := opts.Query
	if query.Concurrency == 0 {
		query = DefaultQueryOptions()
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = ItemPath(path.Join(string(dir), configFileName))
	}
	masterKeyPath := opts.MasterKeyPath
	if masterKeyPath == "" {
		masterKeyPath = ItemPath(path.Join(string(dir), masterKeyFileName))
	}

	type doc struct {
		path ItemPath
		data string
	}
	paths := []ItemPath{configPath, masterKeyPath}
	docs, err := runBatched(paths, -1, func(p ItemPath) (doc, error) {
		data, err := provider.ReadFileString(ctx, p)
		if err != nil {
			return doc{}, NewProviderError("read_file_string", p, err)
		}
		return doc{path: p, data: data}, nil
	})
	if err != nil {
		return nil, err
	}
	configData, masterKeyData := docs[0].data, docs[1].data

	if opts.OnKeyLoad != nil {
		opts.OnKeyLoad()
	}

	keys, err := unmarshalMasterKey([]byte(masterKeyData), password)
	if err != nil {
		return nil, err
	}

	claims, err := unmarshalVaultConfig([]byte(configData), keys)
	if err != nil {
		zero(keys.EncryptKey)
		zero(keys.MacKey)
		return nil, err
	}

	settings := Settings{
		Format:              claims.Format,
		ShorteningThreshold: claims.ShorteningThreshold,
		CipherCombo:         claims.CipherCombo,
	}
	if err := validateSettings(settings); err != nil {
		zero(keys.EncryptKey)
		zero(keys.MacKey)
		return nil, err
	}

	siv, err := newSIVCipher(keys)
	if err != nil {
		zero(keys.EncryptKey)
		zero(keys.MacKey)
		return nil, err
	}

	return &Vault{
		storageRoot: dir,
		name:        path.Base(string(dir)),
		keys:        keys,
		siv:         siv,
		settings:    settings,
		query:       query,
		provider:    provider,
	}, nil
}

// GetDir returns the on-storage directory path for a DirID, per §4.4.
func (v *Vault) GetDir(dirID DirID) (ItemPath, error) {
	return v.siv.pathOfDirID(v.storageRoot, dirID)
}

// ListEncrypted lists dirID's backing storage directory and filters to
// recognized vault entries (.c9r/.c9s), excluding the reserved (and
// never-written) dirid.c9r backup name.
func (v *Vault) ListEncrypted(ctx context.Context, dirID DirID) ([]Item, error) {
	dirPath, err := v.GetDir(dirID)
	if err != nil {
		return nil, err
	}
	items, err := v.provider.ListItems(ctx, dirPath)
	if err != nil {
		return nil, NewProviderError("list_items", dirPath, err)
	}

	filtered := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Name == dirIDBackupFileName {
			continue
		}
		if hasSuffix(it.Name, c9rSuffix) || hasSuffix(it.Name, c9sSuffix) {
			filtered = append(filtered, it)
		}
	}
	return filtered, nil
}

// DecryptFileName decrypts a listed item's on-storage name under parent.
func (v *Vault) DecryptFileName(ctx context.Context, item Item, parentID DirID) (string, error) {
	encoded, _, err := decodeEntryName(item.Name, func() (string, error) {
		sidecarPath := ItemPath(path.Join(string(item.FullName), longNameSidecarName))
		return v.provider.ReadFileString(ctx, sidecarPath)
	})
	if err != nil {
		return "", &DecryptionError{Target: TargetItemName, Item: item.FullName, Err: err}
	}
	return v.siv.decryptName(encoded, parentID, item.FullName)
}

// EncryptFileName encrypts a logical name under parent, returning the
// base64url-padded encoding (without any .c9r/.c9s suffix or shortening
// applied — see materializeEntryPath for the full on-storage name).
func (v *Vault) EncryptFileName(name string, parentID DirID) (string, error) {
	return v.siv.encryptName(name, parentID)
}

// materializeEntryPath computes the full on-storage path (including
// suffix) for a logical name under parentID, placing it inside the
// parent's DirID-mapped backing directory (GetDir(parentID)) and applying
// shortening when the encoded name exceeds the vault's threshold. The
// trailing ItemPath argument is not used.
func (v *Vault) materializeEntryPath(ctx context.Context, name string, parentID DirID, _ ItemPath) (fullName ItemPath, storedName string, shortened bool, fullEncoded string, err error) {
	parentDir, err := v.GetDir(parentID)
	if err != nil {
		return "", "", false, "", err
	}
	entry, shortened, fullEncoded, err := v.siv.entryNameFor(name, parentID, v.settings.ShorteningThreshold)
	if err != nil {
		return "", "", false, "", err
	}
	suffix := c9rSuffix
	if shortened {
		suffix = c9sSuffix
	}
	storedName = entry + suffix
	fullName = ItemPath(path.Join(string(parentDir), storedName))
	return fullName, storedName, shortened, fullEncoded, nil
}

// ListItems decrypts and classifies every entry under dirID, per §4.5.
// nameProgress and typeProgress (both optional) report (done, total) as
// decoding and classification complete, respectively. Concurrency follows
// v.query.Concurrency (see runBatched).
func (v *Vault) ListItems(ctx context.Context, dirID DirID, nameProgress, typeProgress ProgressFunc) ([]EncryptedItem, error) {
	parent, err := v.GetDir(dirID)
	if err != nil {
		return nil, err
	}
	raw, err := v.ListEncrypted(ctx, dirID)
	if err != nil {
		return nil, err
	}

	total := len(raw)
	var named atomic.Int64
	decoded, err := runBatched(raw, v.query.Concurrency, func(item Item) (decodedItem, error) {
		name, err := v.DecryptFileName(ctx, item, dirID)
		if err != nil {
			return decodedItem{}, err
		}
		if nameProgress != nil {
			nameProgress(int(named.Add(1)), total)
		}
		shortened := hasSuffix(item.Name, c9sSuffix)
		return decodedItem{raw: item, name: name, shortened: shortened}, nil
	})
	if err != nil {
		return nil, err
	}

	var classified atomic.Int64
	results, err := runBatched(decoded, v.query.Concurrency, func(d decodedItem) (EncryptedItem, error) {
		item, err := v.classify(ctx, d, dirID, parent)
		if typeProgress != nil {
			typeProgress(int(classified.Add(1)), total)
		}
		return item, err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

type decodedItem struct {
	raw       Item
	name      string
	shortened bool
}

// classify resolves whether a raw entry is a file or directory per §4.5:
// the provider's own type decides, except a shortened (.c9s) directory
// whose entry contains contents.c9r represents a shortened file.
func (v *Vault) classify(ctx context.Context, d decodedItem, parentID DirID, parentFullName ItemPath) (EncryptedItem, error) {
	isFile := d.raw.Type == ItemTypeFile
	if d.shortened && d.raw.Type == ItemTypeDir {
		contentsPath := ItemPath(path.Join(string(d.raw.FullName), contentsEntryName))
		exists, err := v.provider.Exists(ctx, contentsPath)
		if err != nil {
			return nil, NewProviderError("exists", contentsPath, err)
		}
		isFile = exists
	}

	if isFile {
		return &EncryptedFile{
			vault:         v,
			storedName:    d.raw.Name,
			fullName:      d.raw.FullName,
			decryptedName: d.name,
			parentID:      parentID,
			lastMod:       d.raw.LastMod,
			shortened:     d.shortened,
		}, nil
	}

	pID := parentID
	return &EncryptedDir{
		vault:         v,
		storedName:    d.raw.Name,
		fullName:      d.raw.FullName,
		decryptedName: d.name,
		parentID:      &pID,
		lastMod:       d.raw.LastMod,
		shortened:     d.shortened,
	}, nil
}

// CreateDirectory creates a new logical directory named name under
// parent, per §4.5. See DESIGN.md for the fixed_id quirk this preserves.
func (v *Vault) CreateDirectory(ctx context.Context, name string, parent *EncryptedDir, opts CreateDirectoryOptions) (*EncryptedDir, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	parentID, err := parent.GetDirID(ctx, false)
	if err != nil {
		return nil, err
	}

	var dirID DirID
	if opts.FixedDirID != nil {
		dirID = *opts.FixedDirID
	} else {
		dirID = DirID(uuid.NewString())
	}

	entryPath, _, shortened, fullEncoded, err := v.materializeEntryPath(ctx, name, parentID, parent.fullName)
	if err != nil {
		return nil, err
	}
	dirIDPath, err := v.GetDir(dirID)
	if err != nil {
		return nil, err
	}

	cleanup := func() {
		settleAll(
			func() error { return v.provider.RemoveDir(ctx, entryPath) },
			func() error { return v.provider.RemoveDir(ctx, dirIDPath) },
		)
	}

	if err := v.provider.CreateDir(ctx, entryPath, true); err != nil {
		return nil, NewProviderError("create_dir", entryPath, err)
	}
	if err := v.provider.CreateDir(ctx, dirIDPath, true); err != nil {
		cleanup()
		return nil, NewProviderError("create_dir", dirIDPath, err)
	}

	if err := v.provider.WriteFile(ctx, ItemPath(path.Join(string(entryPath), dirIDEntryName)), string(dirID)); err != nil {
		cleanup()
		return nil, NewProviderError("write_file", entryPath, err)
	}
	if shortened {
		if err := v.provider.WriteFile(ctx, ItemPath(path.Join(string(entryPath), longNameSidecarName)), fullEncoded); err != nil {
			cleanup()
			return nil, NewProviderError("write_file", entryPath, err)
		}
	}

	return &EncryptedDir{
		vault:         v,
		fullName:      entryPath,
		decryptedName: name,
		parentID:      &parentID,
		shortened:     shortened,
		dirIDCache:    &dirID,
	}, nil
}

// DeleteFile removes a single file entry.
func (v *Vault) DeleteFile(ctx context.Context, file *EncryptedFile) error {
	if err := v.provider.RemoveFile(ctx, file.fullName); err != nil {
		return NewProviderError("remove_file", file.fullName, err)
	}
	return nil
}

// DeleteDir recursively removes dir and everything under it, per §4.5's
// two-phase discover-then-delete contract. onDiscover, if non-nil, is
// called after every discovery iteration with (paths accumulated so far,
// DirIDs remaining on the stack); the call where the stack has drained to
// 0 is the phase-transition signal (see DESIGN.md Open Question
// resolution) — no separate event is raised for it.
func (v *Vault) DeleteDir(ctx context.Context, dir *EncryptedDir, onDiscover func(discovered, toDiscover int)) error {
	rootID, err := dir.GetDirID(ctx, false)
	if err != nil {
		return err
	}

	stack := []DirID{rootID}
	paths := []ItemPath{dir.fullName}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := v.ListItems(ctx, id, nil, nil)
		if err != nil {
			return err
		}
		for _, child := range children {
			paths = append(paths, child.FullName())
			if childDir, ok := child.(*EncryptedDir); ok {
				childID, err := childDir.GetDirID(ctx, false)
				if err != nil {
					return err
				}
				stack = append(stack, childID)
			}
		}

		if onDiscover != nil {
			onDiscover(len(paths), len(stack))
		}
	}

	_, err = runBatched(paths, v.query.Concurrency, func(p ItemPath) (struct{}, error) {
		if err := v.provider.RemoveDir(ctx, p); err != nil {
			return struct{}{}, NewProviderError("remove_dir", p, err)
		}
		return struct{}{}, nil
	})
	return err
}

// Move relocates every item under destParent in parallel, per §4.5.
func (v *Vault) Move(ctx context.Context, items []EncryptedItem, newNames []string, destParent *EncryptedDir) error {
	if len(items) != len(newNames) {
		return fmt.Errorf("items and newNames must be the same length")
	}
	type pair struct {
		item EncryptedItem
		name string
	}
	pairs := make([]pair, len(items))
	for i := range items {
		pairs[i] = pair{items[i], newNames[i]}
	}

	_, err := runBatched(pairs, -1, func(p pair) (struct{}, error) {
		var err error
		switch it := p.item.(type) {
		case *EncryptedDir:
			err = it.Move(ctx, p.name, destParent)
		case *EncryptedFile:
			err = it.Move(ctx, p.name, destParent)
		default:
			err = fmt.Errorf("unknown item type %T", p.item)
		}
		return struct{}{}, err
	})
	return err
}
