// Package seed loads service entries from a YAML file so a node can
// announce a fixed set of providers at startup.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"semchord/internal/service"
)

// File is the seed file layout:
//
//	entries:
//	  - semantic: [printer, color, a4, duplex]
//	    provider: acme
//	    qos: [fast, cheap]
type File struct {
	Entries []EntrySpec `yaml:"entries"`
}

// EntrySpec is one entry as written in the file.
type EntrySpec struct {
	Semantic []string `yaml:"semantic"`
	Provider string   `yaml:"provider"`
	QoS      []string `yaml:"qos"`
}

// Entry converts the file declaration into a service entry.
func (s EntrySpec) Entry() service.Entry {
	return service.Entry{
		Record: service.Descriptor{
			Semantic: append([]string(nil), s.Semantic...),
			Provider: s.Provider,
		},
		QoS: append([]string(nil), s.QoS...),
	}
}

// Loader handles loading and parsing of a seed file.
type Loader struct {
	filePath string
}

// NewLoader creates a new seed loader.
func NewLoader(filePath string) *Loader {
	return &Loader{filePath: filePath}
}

// Load reads the file and returns its entries. Every entry must be a full
// provider record.
func (l *Loader) Load() ([]service.Entry, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes seed YAML.
func Parse(data []byte) ([]service.Entry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed yaml: %w", err)
	}

	out := make([]service.Entry, 0, len(f.Entries))
	for i, es := range f.Entries {
		e := es.Entry()
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Inserter is satisfied by a ring node.
type Inserter interface {
	Insert(ctx context.Context, e service.Entry) error
}

// Apply inserts every entry through n and returns the joined failures.
func Apply(ctx context.Context, n Inserter, entries []service.Entry) error {
	var errs []error
	for _, e := range entries {
		if err := n.Insert(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("insert %s: %w", e.Record, err))
		}
	}
	return errors.Join(errs...)
}
