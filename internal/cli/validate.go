package cli

import (
	"github.com/skald-lang/skald"
)

// BundleReport summarizes a validated bundle.
type BundleReport struct {
	EntryScript string
	Scripts     int
	Groups      int
	Nodes       int
}

// ValidateBundle decodes a bundle and checks its internal references.
// Decoding already validates the program, so reaching the report means
// the bundle is sound.
func ValidateBundle(path string) (*BundleReport, error) {
	program, err := skald.LoadBundle(path)
	if err != nil {
		return nil, err
	}

	report := &BundleReport{EntryScript: program.EntryScript}
	for _, sc := range program.Scripts {
		report.Scripts++
		for _, group := range sc.Groups {
			report.Groups++
			report.Nodes += len(group.Nodes)
		}
	}
	return report, nil
}
