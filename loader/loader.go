// Package loader is an opaque source of a (bytes, length) pair: a flat
// .slx file whose length is a multiple of the core's instruction width, no
// header, no magic, no version field.
package loader

import (
	"fmt"
	"io"
	"os"
)

// InstrBytes mirrors slimvm.InstrBytes. It is duplicated here (rather than
// imported) so this package never needs to depend on the core engine -
// loader is a pure byte-plumbing collaborator.
const InstrBytes = 9

// Load reads an entire .slx file into memory and validates that its length
// is a multiple of InstrBytes.
func Load(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: could not open %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("loader: could not read %s: %w", path, err)
	}

	if len(data)%InstrBytes != 0 {
		return nil, fmt.Errorf("loader: %s has length %d, not a multiple of %d", path, len(data), InstrBytes)
	}

	return data, nil
}
