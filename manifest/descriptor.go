/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package manifest

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed descriptors.yaml
var defaultDescriptors []byte

// FileDescriptor pairs a source-language asset with its translation.
type FileDescriptor struct {
	OriginalPath   string `yaml:"originalPath"`
	TranslatedPath string `yaml:"translatedPath"`
	DisplayName    string `yaml:"name"`
	Category       string `yaml:"category"`
	// GameFolderPaths maps a platform to the asset's location in the
	// installed game.
	GameFolderPaths map[string]string `yaml:"pathsInGameFolder"`
}

// ResolvedFileEntry is a FileDescriptor with download URLs for both sides at
// a specific ref.
type ResolvedFileEntry struct {
	Category        string            `json:"category"`
	Name            string            `json:"name"`
	GameFolderPaths map[string]string `json:"pathsInGameFolder"`
	TranslatedPath  string            `json:"translatedPath"`
	OriginalPath    string            `json:"originalPath"`
	Original        string            `json:"original"`
	Translated      string            `json:"translated"`
}

// DefaultDescriptors returns the built-in asset table.
func DefaultDescriptors() []FileDescriptor {
	ds, err := ParseDescriptors(defaultDescriptors)
	if err != nil {
		panic(fmt.Sprintf("embedded descriptors are invalid: %v", err))
	}
	return ds
}

// LoadDescriptors reads a YAML asset table from path.
func LoadDescriptors(path string) ([]FileDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptors: %w", err)
	}
	ds, err := ParseDescriptors(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// ParseDescriptors decodes and validates a YAML asset table. Unknown fields
// are rejected.
func ParseDescriptors(data []byte) ([]FileDescriptor, error) {
	var ds []FileDescriptor
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ds); err != nil {
		return nil, fmt.Errorf("decoding descriptors: %w", err)
	}
	if err := ValidateDescriptors(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// ValidateDescriptors checks that every descriptor is complete and that no
// two descriptors share a translated path.
func ValidateDescriptors(ds []FileDescriptor) error {
	if len(ds) == 0 {
		return errors.New("at least one descriptor is required")
	}
	seen := make(map[string]int, len(ds))
	var errs []error
	for i, d := range ds {
		switch {
		case strings.TrimSpace(d.OriginalPath) == "":
			errs = append(errs, fmt.Errorf("descriptor %d: originalPath is required", i))
		case strings.TrimSpace(d.TranslatedPath) == "":
			errs = append(errs, fmt.Errorf("descriptor %d: translatedPath is required", i))
		case strings.TrimSpace(d.DisplayName) == "":
			errs = append(errs, fmt.Errorf("descriptor %d: name is required", i))
		case strings.TrimSpace(d.Category) == "":
			errs = append(errs, fmt.Errorf("descriptor %d: category is required", i))
		}
		if j, ok := seen[d.TranslatedPath]; ok && d.TranslatedPath != "" {
			errs = append(errs, fmt.Errorf("descriptor %d: translatedPath %q duplicates descriptor %d", i, d.TranslatedPath, j))
		}
		seen[d.TranslatedPath] = i
	}
	return errors.Join(errs...)
}
