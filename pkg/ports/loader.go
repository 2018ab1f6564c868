package ports

import "errors"

// ErrBundleNotFound is returned by GetBundle for unknown names.
var ErrBundleNotFound = errors.New("bundle not found")

// BundleLoader retrieves compiled story bundles by name. It decouples
// the serving layer from where bundles live (memory, filesystem, a
// registry service).
type BundleLoader interface {
	// GetBundle returns the raw bundle document for script.DecodeProgram.
	GetBundle(name string) ([]byte, error)

	// ListBundles returns the available bundle names.
	ListBundles() ([]string, error)
}
