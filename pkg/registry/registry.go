// Package registry keeps fitted estimator bundles on disk. Each model lives
// in its own directory holding a manifest and one file per bundle component.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/absmach/cohort/pkg/codec"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

const manifestFile = "manifest.json"

var ErrInvalidID = errors.New("invalid model id")

// Manifest describes a saved bundle well enough to rebuild its estimator.
type Manifest struct {
	Name      string          `json:"name"`
	Label     string          `json:"label"`
	Features  []string        `json:"features,omitempty"`
	Codec     string          `json:"codec"`
	Estimator json.RawMessage `json:"estimator,omitempty"`
	Trainer   json.RawMessage `json:"trainer,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type Registry struct {
	dir string
	mu  sync.RWMutex
}

func New(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	return &Registry{dir: dir}, nil
}

func (r *Registry) Save(id string, m Manifest, b codec.Bundle) error {
	sid := sanitizeID(id)
	if sid == "" {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Written aside and renamed so a reader never sees half a bundle.
	tmp, err := os.MkdirTemp(r.dir, ".tmp-"+sid+"-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	if err := SaveDir(tmp, m, b); err != nil {
		os.RemoveAll(tmp)

		return err
	}
	dst := filepath.Join(r.dir, sid)
	if err := os.RemoveAll(dst); err != nil {
		os.RemoveAll(tmp)

		return fmt.Errorf("failed to replace bundle: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.RemoveAll(tmp)

		return fmt.Errorf("failed to move bundle into place: %w", err)
	}

	return nil
}

func (r *Registry) Load(id string) (Manifest, codec.Bundle, error) {
	sid := sanitizeID(id)
	if sid == "" {
		return Manifest{}, codec.Bundle{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return LoadDir(filepath.Join(r.dir, sid))
}

func (r *Registry) Delete(id string) error {
	sid := sanitizeID(id)
	if sid == "" {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return os.RemoveAll(filepath.Join(r.dir, sid))
}

// List returns the ids of every saved bundle in lexical order.
func (r *Registry) List() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)

	return ids, nil
}

// SaveDir writes a manifest and bundle into dir, creating it if needed.
func SaveDir(dir string, m Manifest, b codec.Bundle) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	for key, blob := range b.Result() {
		if err := os.WriteFile(filepath.Join(dir, key), blob.([]byte), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
	}

	return nil
}

// LoadDir reads what SaveDir wrote. Absent components stay nil.
func LoadDir(dir string) (Manifest, codec.Bundle, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Manifest{}, codec.Bundle{}, pkgerrors.ErrNotFound
		}

		return Manifest{}, codec.Bundle{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, codec.Bundle{}, fmt.Errorf("%w: manifest: %w", pkgerrors.ErrBundleFormat, err)
	}

	res := make(map[string]any, len(codec.Keys))
	for _, key := range codec.Keys {
		blob, err := os.ReadFile(filepath.Join(dir, key))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			return Manifest{}, codec.Bundle{}, fmt.Errorf("failed to read %s: %w", key, err)
		}
		res[key] = blob
	}

	b, err := codec.BundleFromResult(res)
	if err != nil {
		return Manifest{}, codec.Bundle{}, err
	}

	return m, b, nil
}

// sanitizeID keeps only characters that are safe in a single path element.
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	return b.String()
}
