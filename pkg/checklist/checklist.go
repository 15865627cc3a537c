// Package checklist loads cockpit checklists stored as two-column CSV files
// (item, expected response).
package checklist

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/unklstewy/airspace-assistant/pkg/reference"
)

// ErrNotFound is returned when no checklist exists for a type and model.
var ErrNotFound = errors.New("checklist not found")

// Item is one numbered checklist line. ID starts at 1.
type Item struct {
	Item     string `json:"item"`
	Response string `json:"response"`
	ID       int    `json:"id"`
}

// Provider returns the ordered items of a checklist.
type Provider interface {
	Checklist(ctx context.Context, kind, model string) ([]Item, error)
}

// Catalogue resolves a checklist type and model to a file.
// *reference.Snapshot satisfies it.
type Catalogue interface {
	Checklist(kind, model string) (reference.Checklist, bool)
}

// FileProvider reads checklist files listed in the reference catalogue.
type FileProvider struct {
	// dir is the base for relative file names
	dir string

	// defaultModel is used when the aircraft model is unknown or has no
	// checklist of the requested type
	defaultModel string

	// catalogue returns the current catalogue; it is called per lookup so
	// snapshot refreshes are picked up
	catalogue func() Catalogue
}

// NewFileProvider creates a provider reading files under dir.
func NewFileProvider(dir, defaultModel string, catalogue func() Catalogue) *FileProvider {
	return &FileProvider{dir: dir, defaultModel: defaultModel, catalogue: catalogue}
}

// Checklist implements Provider.
func (p *FileProvider) Checklist(ctx context.Context, kind, model string) ([]Item, error) {
	entry, ok := p.lookup(kind, model)
	if !ok {
		return nil, fmt.Errorf("%w: %s for %q", ErrNotFound, kind, model)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := entry.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.dir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open checklist: %w", err)
	}
	defer f.Close()

	items, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("checklist %s: %w", path, err)
	}
	return items, nil
}

func (p *FileProvider) lookup(kind, model string) (reference.Checklist, bool) {
	if p.catalogue == nil {
		return reference.Checklist{}, false
	}
	cat := p.catalogue()
	if cat == nil {
		return reference.Checklist{}, false
	}
	if model = strings.TrimSpace(model); model != "" {
		if c, ok := cat.Checklist(kind, model); ok {
			return c, true
		}
	}
	if p.defaultModel == "" {
		return reference.Checklist{}, false
	}
	return cat.Checklist(kind, p.defaultModel)
}

// Parse reads (item, response) rows and numbers them from 1. Extra columns
// are ignored; rows with fewer than two columns are an error.
func Parse(r io.Reader) ([]Item, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var items []Item
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: expected item and response, got %d field(s)", line, len(rec))
		}
		items = append(items, Item{
			Item:     strings.TrimSpace(rec[0]),
			Response: strings.TrimSpace(rec[1]),
			ID:       len(items) + 1,
		})
	}
	return items, nil
}
