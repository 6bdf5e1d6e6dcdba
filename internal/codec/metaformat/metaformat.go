// Package metaformat parses document frontmatter and standalone
// BeliefNetwork.{toml,json} files (§4.7). Both formats decode into the same
// map[string]any table so downstream schema traversal (reserved-key
// checks, sections lookup) is format-blind.
//
// Grounded on the teacher's config-loading convention of trying a preferred
// format then falling back (internal/config), generalised here to two
// concrete formats: github.com/BurntSushi/toml (borrowed from the
// iota-uz-iota-sdk example repo's go.mod, the only other example carrying a
// TOML dependency) and the stdlib encoding/json.
package metaformat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// Format is a frontmatter/network-config serialisation choice (§4.7).
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// Table is the format-blind decoded frontmatter/network-config body.
type Table map[string]any

// Parse tries preferred first, then the other format, returning a combined
// error only if both fail (§4.7 "try the preferred format then fall back to
// the alternative, returning a combined error only if both fail").
func Parse(data []byte, preferred Format) (Table, Format, error) {
	order := []Format{preferred, other(preferred)}
	var errs []error
	for _, f := range order {
		t, err := parseOne(data, f)
		if err == nil {
			return t, f, nil
		}
		errs = append(errs, err)
	}
	return nil, "", fmt.Errorf("frontmatter parse failed as %s (%w) and as %s (%w)",
		order[0], errs[0], order[1], errs[1])
}

func other(f Format) Format {
	if f == FormatTOML {
		return FormatJSON
	}
	return FormatTOML
}

func parseOne(data []byte, f Format) (Table, error) {
	t := Table{}
	switch f {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&t); err != nil {
			return nil, err
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &t); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown frontmatter format %q", f)
	}
	return t, nil
}

// Encode serialises t in format f, used for canonical frontmatter
// write-back and for the "serialise as TOML" leg of the round-trip law
// (§8 "Parse a frontmatter as JSON, serialise as TOML, parse as TOML").
func Encode(t Table, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return json.MarshalIndent(t, "", "  ")
	case FormatTOML:
		var buf bytes.Buffer
		enc := toml.NewEncoder(&buf)
		if err := enc.Encode(normalizeNumbers(t).(map[string]any)); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown frontmatter format %q", f)
	}
}

// EncodeDocument serialises a document's frontmatter table canonically:
// bid first, remaining keys in sorted order (§6 "Canonical output
// serialises bid first so re-parses are idempotent").
func EncodeDocument(t Table, f Format) ([]byte, error) {
	keys := make([]string, 0, len(t))
	for k := range t {
		if k != "bid" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := t["bid"]; ok {
		keys = append([]string{"bid"}, keys...)
	}

	switch f {
	case FormatJSON:
		var buf bytes.Buffer
		buf.WriteString("{\n")
		for i, k := range keys {
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := json.MarshalIndent(t[k], "  ", "  ")
			if err != nil {
				return nil, err
			}
			buf.WriteString("  ")
			buf.Write(kb)
			buf.WriteString(": ")
			buf.Write(vb)
			if i < len(keys)-1 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		buf.WriteString("}")
		return buf.Bytes(), nil
	case FormatTOML:
		var buf bytes.Buffer
		if bid, ok := t["bid"].(string); ok {
			fmt.Fprintf(&buf, "bid = %q\n", bid)
		}
		rest := map[string]any{}
		for _, k := range keys {
			if k == "bid" {
				continue
			}
			rest[k] = normalizeNumbers(t[k])
		}
		if len(rest) > 0 {
			enc := toml.NewEncoder(&buf)
			if err := enc.Encode(rest); err != nil {
				return nil, err
			}
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown frontmatter format %q", f)
	}
}

// normalizeNumbers converts json.Number values (left behind by the JSON
// decoder's UseNumber) into int64/float64 so the TOML encoder writes them
// as numbers rather than strings. Required for the parse-as-JSON,
// serialise-as-TOML round trip to be structurally lossless.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := map[string]any{}
		for k, sub := range t {
			out[k] = normalizeNumbers(sub)
		}
		return out
	case Table:
		out := map[string]any{}
		for k, sub := range t {
			out[k] = normalizeNumbers(sub)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, sub := range t {
			out[i] = normalizeNumbers(sub)
		}
		return out
	default:
		return v
	}
}

// NetworkConfig is the reserved noet.network_config table (§4.[FULL].7).
type NetworkConfig struct {
	Format       Format `json:"format" toml:"format"`
	StrictFormat bool   `json:"strict_format" toml:"strict_format"`
	Title        string `json:"title" toml:"title"`
	Description  string `json:"description" toml:"description"`
}

// ReservedNetworkConfigKey is the frontmatter/TOML key carrying a network's
// config table.
const ReservedNetworkConfigKey = "noet.network_config"

// ParseNetworkConfig extracts noet.network_config from an already-decoded
// table, defaulting Format to FormatJSON when absent.
func ParseNetworkConfig(t Table) NetworkConfig {
	cfg := NetworkConfig{Format: FormatJSON}
	raw, ok := t[ReservedNetworkConfigKey]
	if !ok {
		return cfg
	}
	sub, ok := raw.(map[string]any)
	if !ok {
		return cfg
	}
	if v, ok := sub["format"].(string); ok && v != "" {
		cfg.Format = Format(v)
	}
	if v, ok := sub["strict_format"].(bool); ok {
		cfg.StrictFormat = v
	}
	if v, ok := sub["title"].(string); ok {
		cfg.Title = v
	}
	if v, ok := sub["description"].(string); ok {
		cfg.Description = v
	}
	return cfg
}
