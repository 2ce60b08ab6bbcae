package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	si "github.com/panyam/signin"
)

var keyReplacer = strings.NewReplacer(":", "_", "/", "_", "\\", "_", "..", "_")

// safeName turns a key into a single path element.
func safeName(key string) string {
	return filepath.Base(keyReplacer.Replace(key))
}

// recordDir holds one kind of record as <root>/<kind>/<key>.json.
type recordDir struct {
	root string
	kind string
}

func (d recordDir) path(key string) string {
	return filepath.Join(d.root, d.kind, safeName(key)+".json")
}

// load decodes the record at key into v. Missing records yield si.ErrNotFound.
func (d recordDir) load(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(d.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s %q: %w", d.kind, key, si.ErrNotFound)
	} else if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("corrupt %s record %q: %w", d.kind, key, err)
	}
	return nil
}

// store replaces the record at key with v.
func (d recordDir) store(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return replaceFile(d.path(key), data)
}

// remove deletes the record at key. Missing records are not an error.
func (d recordDir) remove(key string) error {
	if err := os.Remove(d.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// replaceFile writes data next to path and renames it into place so readers
// never see a partial record.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
