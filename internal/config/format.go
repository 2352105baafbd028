package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/muurk/printhost/internal/settings"
)

// Format is an on-disk encoding of the settings tree
type Format int

const (
	FormatYAML Format = iota
	FormatTOML
	FormatJSON
)

// String returns the format name
func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	case FormatJSON:
		return "json"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FormatForPath picks the format from the file extension
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("unsupported settings file extension %q (want .yaml, .yml, .toml or .json)", filepath.Ext(path))
	}
}

// Decode parses data into a settings tree. Empty input yields an empty tree.
func (f Format) Decode(data []byte) (settings.Tree, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return settings.Tree{}, nil
	}

	raw := make(map[string]any)
	var err error
	switch f {
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	case FormatTOML:
		err = toml.Unmarshal(data, &raw)
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		err = dec.Decode(&raw)
	default:
		err = fmt.Errorf("unknown format %v", f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s settings: %w", f, err)
	}

	return settings.NormalizeTree(raw)
}

// Encode renders a settings tree, prefixed with header where the format
// supports comments
func (f Format) Encode(tree settings.Tree, header string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatYAML:
		data, err = yaml.Marshal(tree)
	case FormatTOML:
		data, err = toml.Marshal(dropNulls(tree))
	case FormatJSON:
		data, err = json.MarshalIndent(tree, "", "  ")
		data = append(data, '\n')
	default:
		err = fmt.Errorf("unknown format %v", f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s settings: %w", f, err)
	}

	if header == "" || f == FormatJSON {
		return data, nil
	}
	var buf bytes.Buffer
	for _, line := range strings.Split(strings.TrimRight(header, "\n"), "\n") {
		buf.WriteString("#")
		if line != "" {
			buf.WriteString(" " + line)
		}
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(data)
	return buf.Bytes(), nil
}

// dropNulls returns a copy of t without nil values, which TOML cannot express
func dropNulls(t settings.Tree) settings.Tree {
	out := make(settings.Tree, len(t))
	for k, v := range t {
		switch val := v.(type) {
		case nil:
			continue
		case settings.Tree:
			out[k] = dropNulls(val)
		case []any:
			items := make([]any, 0, len(val))
			for _, item := range val {
				if item == nil {
					continue
				}
				if m, ok := item.(settings.Tree); ok {
					item = dropNulls(m)
				}
				items = append(items, item)
			}
			out[k] = items
		default:
			out[k] = val
		}
	}
	return out
}
