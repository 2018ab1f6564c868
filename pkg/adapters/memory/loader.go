package memory

import (
	"fmt"
	"sort"

	"github.com/skald-lang/skald/pkg/ports"
	"github.com/skald-lang/skald/pkg/script"
)

// Loader implements ports.BundleLoader using an in-memory map.
type Loader struct {
	bundles map[string][]byte
}

// NewLoader creates a Loader from raw bundle documents keyed by name.
func NewLoader(data map[string]string) *Loader {
	bundles := make(map[string][]byte)
	for k, v := range data {
		bundles[k] = []byte(v)
	}
	return &Loader{
		bundles: bundles,
	}
}

// NewFromPrograms creates a Loader from in-memory programs. Encoding
// happens here so tests do not have to serialize bundles by hand.
func NewFromPrograms(programs map[string]*script.Program) (*Loader, error) {
	data := make(map[string][]byte)
	for name, program := range programs {
		if name == "" {
			return nil, fmt.Errorf("bundle missing name")
		}
		bytes, err := script.EncodeProgram(program)
		if err != nil {
			return nil, fmt.Errorf("failed to encode bundle %s: %w", name, err)
		}
		data[name] = bytes
	}
	return &Loader{bundles: data}, nil
}

// GetBundle retrieves the raw bundle document by name.
func (l *Loader) GetBundle(name string) ([]byte, error) {
	content, ok := l.bundles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrBundleNotFound, name)
	}
	return content, nil
}

// ListBundles returns all available bundle names.
func (l *Loader) ListBundles() ([]string, error) {
	names := make([]string, 0, len(l.bundles))
	for name := range l.bundles {
		names = append(names, name)
	}
	sort.Strings(names) // Deterministic order
	return names, nil
}
