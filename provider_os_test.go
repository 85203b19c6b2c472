package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// osProvider is a DataProvider backed by a temp directory on the real
// filesystem, mirroring the teacher's osTestFS fixture in
// encryptfs_test.go (same os.MkdirTemp + filepath.Join shape), adapted
// from absfs.FileSystem's method set to this package's thinner
// DataProvider contract.
type osProvider struct {
	root string
}

func setupProvider(t *testing.T) (*osProvider, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "vault-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	return &osProvider{root: dir}, func() { os.RemoveAll(dir) }
}

func (p *osProvider) resolve(path ItemPath) string {
	return filepath.Join(p.root, filepath.FromSlash(string(path)))
}

func (p *osProvider) Exists(_ context.Context, path ItemPath) (bool, error) {
	_, err := os.Stat(p.resolve(path))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *osProvider) ReadFileString(_ context.Context, path ItemPath) (string, error) {
	data, err := os.ReadFile(p.resolve(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (p *osProvider) WriteFile(_ context.Context, path ItemPath, data string) error {
	full := p.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(data), 0o644)
}

func (p *osProvider) CreateDir(_ context.Context, path ItemPath, recursive bool) error {
	full := p.resolve(path)
	if recursive {
		return os.MkdirAll(full, 0o755)
	}
	return os.Mkdir(full, 0o755)
}

func (p *osProvider) RemoveFile(_ context.Context, path ItemPath) error {
	return os.Remove(p.resolve(path))
}

func (p *osProvider) RemoveDir(_ context.Context, path ItemPath) error {
	return os.RemoveAll(p.resolve(path))
}

func (p *osProvider) ListItems(_ context.Context, path ItemPath) ([]Item, error) {
	entries, err := os.ReadDir(p.resolve(path))
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		typ := ItemTypeFile
		if e.IsDir() {
			typ = ItemTypeDir
		}
		items = append(items, Item{
			Type:     typ,
			Name:     e.Name(),
			FullName: ItemPath(filepath.ToSlash(filepath.Join(string(path), e.Name()))),
			LastMod:  info.ModTime().Unix(),
			Size:     info.Size(),
		})
	}
	return items, nil
}
