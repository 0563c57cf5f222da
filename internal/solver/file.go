package solver

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/gcfg.v1"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/flexsync/internal/tracker"
)

// Format is the encoding of a parameter file.
type Format int

const (
	FormatYAML Format = iota
	FormatTOML
	FormatINI
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".ini", ".gcfg", ".cfg":
		return FormatINI, nil
	}
	return 0, fmt.Errorf("unsupported parameter file %q", path)
}

// iniFile is the gcfg layout: every key lives in a [params] section.
type iniFile struct {
	Params Params
}

// ParseParams decodes data on top of DefaultParams. The token of the result
// is derived from the content, so unchanged files keep their token.
func ParseParams(data []byte, format Format) (Params, error) {
	p := DefaultParams()
	var err error
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(&p); err != nil && len(bytes.TrimSpace(data)) == 0 {
			err = nil
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&p)
	case FormatINI:
		wrap := iniFile{Params: p}
		err = gcfg.ReadStringInto(&wrap, string(data))
		p = wrap.Params
	default:
		err = fmt.Errorf("unknown format %d", format)
	}
	if err != nil {
		return Params{}, fmt.Errorf("failed to parse params: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	p.Token = tracker.Hash(data)
	return p, nil
}

// LoadParams reads a parameter file in the format given by its extension.
func LoadParams(path string) (Params, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Params{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("failed to read params: %w", err)
	}
	return ParseParams(data, format)
}

// SaveParams writes p in the format given by the extension of path.
func SaveParams(path string, p Params) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	var data []byte
	switch format {
	case FormatYAML:
		data, err = yaml.Marshal(p)
	case FormatTOML:
		data, err = toml.Marshal(p)
	default:
		return fmt.Errorf("saving %s files is not supported", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write params: %w", err)
	}
	return nil
}
