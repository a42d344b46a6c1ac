// Package governance classifies every attribute of every tracked entity and
// refuses to let anything be exported until that classification is complete.
package governance

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File names of the declarative lists inside the governance directory.
const (
	ExportFile    = "fields.yml"
	PIIFile       = "fields_pii.yml"
	BlocklistFile = "fields_blocklist.yml"
)

// EntityFields maps an entity name to a list of attribute names.
type EntityFields map[string][]string

// Lists holds the three hand-authored classification lists.
type Lists struct {
	Export    EntityFields
	PII       EntityFields
	Blocklist EntityFields
}

// LoadLists reads the classification lists from dir. A missing file is an
// empty list; a file that does not parse is an error.
func LoadLists(dir string) (Lists, error) {
	var (
		l   Lists
		err error
	)
	if l.Export, err = readEntityFields(filepath.Join(dir, ExportFile)); err != nil {
		return Lists{}, err
	}
	if l.PII, err = readEntityFields(filepath.Join(dir, PIIFile)); err != nil {
		return Lists{}, err
	}
	if l.Blocklist, err = readEntityFields(filepath.Join(dir, BlocklistFile)); err != nil {
		return Lists{}, err
	}
	return l, nil
}

func readEntityFields(path string) (EntityFields, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return EntityFields{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	fields := EntityFields{}
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return fields, nil
}
