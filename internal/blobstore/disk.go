package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

var _ Store = (*DiskStore)(nil)

// DiskStore keeps reports as files under <baseDir>/<container>. Useful for
// local runs and for pointing the dashboard at a copy of production data.
type DiskStore struct {
	baseDir   string
	container string
}

func NewDisk(baseDir, container string) *DiskStore {
	return &DiskStore{baseDir: baseDir, container: container}
}

func (d *DiskStore) Container() string { return d.container }

func (d *DiskStore) dir() string {
	return filepath.Join(d.baseDir, d.container)
}

func (d *DiskStore) path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return filepath.Join(d.dir(), clean), nil
}

func (d *DiskStore) EnsureContainer(_ context.Context) (bool, error) {
	if _, err := os.Stat(d.dir()); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(d.dir(), 0o755); err != nil {
		log.WithError(err).Errorln("Failed to create dir")
		return false, err
	}
	return true, nil
}

// Put writes through a temp file so readers never observe a partial object.
func (d *DiskStore) Put(_ context.Context, name string, data []byte) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
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
	return os.Rename(tmp.Name(), p)
}

func (d *DiskStore) Get(_ context.Context, name string) ([]byte, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"Path":     d.dir(),
		"FileName": name,
	}).Debug("DiskStore opening file")

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return data, err
}

func (d *DiskStore) List(_ context.Context) ([]Object, error) {
	var objects []Object
	root := d.dir()
	err := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".upload-") {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		objects = append(objects, Object{Name: filepath.ToSlash(rel), Size: info.Size(), Modified: info.ModTime()})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}
