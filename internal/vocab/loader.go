package vocab

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a vocabulary override file and merges it onto [Default].
// Lists missing from the file or left empty keep their built-in values.
//
// Example:
//
//	medications:
//	  - amoxicillin
//	  - semaglutide
//	test_keywords: [test, scan, biopsy]
func LoadFile(path string) (*Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: open %q: %w", path, err)
	}
	defer f.Close()

	t, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("vocab: parse %q: %w", path, err)
	}
	return t, nil
}

// LoadFromReader parses vocabulary YAML from r and merges it onto [Default].
// An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Tables, error) {
	var override Tables
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&override); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("vocab: decode yaml: %w", err)
	}
	return Default().Merge(&override), nil
}
