// Package source decodes validated snapshot rows and registry exports
// from local files. YAML and JSON are accepted, chosen by extension.
package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/epar/internal/record"
)

// Format is a supported file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported file extension %q (want .yaml, .yml or .json)", filepath.Ext(path))
}

// LoadRows reads a snapshot: a top-level list of rows.
func LoadRows(path string) ([]record.RawRow, error) {
	var rows []record.RawRow
	if err := loadFile(path, &rows); err != nil {
		return nil, fmt.Errorf("load rows: %w", err)
	}
	if rows == nil {
		rows = []record.RawRow{}
	}
	return rows, nil
}

// LoadRegistry reads a registry export: a top-level list of entries.
func LoadRegistry(path string) ([]record.RegistryEntry, error) {
	var entries []record.RegistryEntry
	if err := loadFile(path, &entries); err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	if entries == nil {
		entries = []record.RegistryEntry{}
	}
	return entries, nil
}

func loadFile(path string, v any) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := Decode(data, format, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Decode strictly decodes data into v: unknown fields are errors.
func Decode(data []byte, format Format, v any) error {
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse yaml: %w", err)
		}
		return nil
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse json: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown format %q", format)
}
