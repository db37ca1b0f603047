package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStorage writes tiles below baseDir/container. The object metadata is
// kept next to each tile in a ".meta.json" sidecar.
type FileStorage struct {
	baseDir     string
	healthcheck string
}

func NewFileStorage(baseDir, healthcheck string) *FileStorage {
	return &FileStorage{
		baseDir:     baseDir,
		healthcheck: healthcheck,
	}
}

type fileMeta struct {
	ContentType  string            `json:"content_type,omitempty"`
	CacheControl string            `json:"cache_control,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (f *FileStorage) path(container, key string) string {
	return filepath.Join(f.baseDir, container, filepath.FromSlash(key))
}

func (f *FileStorage) Put(_ context.Context, container, key string, obj *Object) error {
	tilepath := f.path(container, key)
	if err := os.MkdirAll(filepath.Dir(tilepath), 0755); err != nil {
		return fmt.Errorf("put %s: %w", tilepath, err)
	}

	if err := writeFileAtomic(tilepath, obj.Body); err != nil {
		return fmt.Errorf("put %s: %w", tilepath, err)
	}

	meta, err := json.Marshal(&fileMeta{
		ContentType:  obj.ContentType,
		CacheControl: obj.CacheControl,
		Metadata:     obj.Metadata,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", tilepath, err)
	}
	if err := writeFileAtomic(tilepath+".meta.json", meta); err != nil {
		return fmt.Errorf("put %s: %w", tilepath, err)
	}

	return nil
}

// writeFileAtomic makes a concurrent writer of the same key win or lose as a
// whole, never interleave.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (f *FileStorage) Delete(_ context.Context, container, key string) error {
	tilepath := f.path(container, key)
	for _, p := range []string{tilepath, tilepath + ".meta.json"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", p, err)
		}
	}
	return nil
}

func (f *FileStorage) HealthCheck() error {
	if f.healthcheck == "" {
		_, err := os.Stat(f.baseDir)
		return err
	}
	file, err := os.Open(filepath.Join(f.baseDir, f.healthcheck))
	if err != nil {
		return err
	}
	return file.Close()
}
