package service

import (
	"errors"
	"fmt"
	"strings"
)

// SemanticSlots is the number of semantic attribute positions in a descriptor.
const SemanticSlots = 4

// ErrInvalidDescriptor is returned for descriptors that cannot be hashed.
var ErrInvalidDescriptor = errors.New("invalid service descriptor")

// keySep separates attributes in Key. Validate rejects attributes containing it.
const keySep = "\x1f"

// Descriptor names a service by up to SemanticSlots ordered semantic
// attributes and an optional provider. Missing attributes are always a
// suffix: the provider may only be set when every semantic slot is set.
type Descriptor struct {
	Semantic []string
	Provider string
}

// NewDescriptor builds and validates a descriptor.
func NewDescriptor(provider string, semantic ...string) (Descriptor, error) {
	d := Descriptor{
		Semantic: append([]string(nil), semantic...),
		Provider: provider,
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// Validate checks the slot rules.
func (d Descriptor) Validate() error {
	if len(d.Semantic) == 0 {
		return fmt.Errorf("%w: no semantic attributes", ErrInvalidDescriptor)
	}
	if len(d.Semantic) > SemanticSlots {
		return fmt.Errorf("%w: %d semantic attributes, at most %d allowed",
			ErrInvalidDescriptor, len(d.Semantic), SemanticSlots)
	}
	for i, attr := range d.Semantic {
		if attr == "" {
			return fmt.Errorf("%w: semantic attribute %d is empty", ErrInvalidDescriptor, i)
		}
		if strings.Contains(attr, keySep) {
			return fmt.Errorf("%w: semantic attribute %d contains a separator", ErrInvalidDescriptor, i)
		}
	}
	if strings.Contains(d.Provider, keySep) {
		return fmt.Errorf("%w: provider contains a separator", ErrInvalidDescriptor)
	}
	if d.Provider != "" && len(d.Semantic) < SemanticSlots {
		return fmt.Errorf("%w: provider set with only %d semantic attributes",
			ErrInvalidDescriptor, len(d.Semantic))
	}
	return nil
}

// FullySpecified reports whether every semantic slot and the provider are set,
// i.e. whether d identifies one concrete provider record.
func (d Descriptor) FullySpecified() bool {
	return len(d.Semantic) == SemanticSlots && d.Provider != ""
}

// Key returns a canonical string form usable as a map key.
func (d Descriptor) Key() string {
	var b strings.Builder
	for _, attr := range d.Semantic {
		b.WriteString(attr)
		b.WriteString(keySep)
	}
	b.WriteString(d.Provider)
	return b.String()
}

// Equal compares attributes slot by slot.
func (d Descriptor) Equal(o Descriptor) bool {
	if d.Provider != o.Provider || len(d.Semantic) != len(o.Semantic) {
		return false
	}
	for i := range d.Semantic {
		if d.Semantic[i] != o.Semantic[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no slices with d.
func (d Descriptor) Clone() Descriptor {
	return Descriptor{
		Semantic: append([]string(nil), d.Semantic...),
		Provider: d.Provider,
	}
}

func (d Descriptor) String() string {
	parts := make([]string, SemanticSlots+1)
	for i := 0; i < SemanticSlots; i++ {
		if i < len(d.Semantic) {
			parts[i] = d.Semantic[i]
		} else {
			parts[i] = "*"
		}
	}
	if d.Provider != "" {
		parts[SemanticSlots] = d.Provider
	} else {
		parts[SemanticSlots] = "*"
	}
	return strings.Join(parts, "/")
}
