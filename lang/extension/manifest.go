package extension

import (
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/mna/jyafn/lang/layout"
)

// The Manifest is the JSON document returned by an extension's
// extension_init entry point. It names the extension and, for each resource
// type it contributes, the symbols implementing the five required
// operations, plus the three shared symbol groups describing how the host
// releases values produced by the extension.
type Manifest struct {
	Metadata  Metadata                    `json:"metadata"`
	Outcome   OutcomeManifest             `json:"outcome"`
	Dumped    DumpedManifest              `json:"dumped"`
	String    StringManifest              `json:"string"`
	Resources map[string]ResourceManifest `json:"resources"`
}

// Metadata identifies the extension. Name and version must match the
// resolved file name.
type Metadata struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// SemVersion parses the advertised version.
func (m *Metadata) SemVersion() (*semver.Version, error) {
	return semver.NewVersion(m.Version)
}

// OutcomeManifest names the accessors of the extension's outcome type: a
// type-erased result carrying either an error string or an opaque success
// value.
type OutcomeManifest struct {
	FnGetErr string `json:"fn_get_err"`
	FnGetOk  string `json:"fn_get_ok"`
	FnDrop   string `json:"fn_drop"`
}

// DumpedManifest names the accessors of the extension's binary dump type.
type DumpedManifest struct {
	FnGetPtr string `json:"fn_get_ptr"`
	FnGetLen string `json:"fn_get_len"`
	FnDrop   string `json:"fn_drop"`
}

// StringManifest names the release function for C strings produced by the
// extension.
type StringManifest struct {
	FnDrop string `json:"fn_drop"`
}

// ResourceManifest names the five operations of one resource type.
type ResourceManifest struct {
	FnFromBytes    string `json:"fn_from_bytes"`
	FnDump         string `json:"fn_dump"`
	FnSize         string `json:"fn_size"`
	FnGetMethodDef string `json:"fn_get_method_def"`
	FnDrop         string `json:"fn_drop"`
}

// loadOutcome is the wire form of the init result: either a manifest or a
// failure report.
type loadOutcome struct {
	Error *string `json:"error"`
	Manifest
}

// ParseInitPayload decodes the JSON document returned by extension_init.
func ParseInitPayload(payload []byte) (*Manifest, error) {
	var out loadOutcome
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decoding extension manifest: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("extension failed to load: %s", *out.Error)
	}
	m := out.Manifest
	if m.Metadata.Name == "" {
		return nil, fmt.Errorf("extension manifest has no name")
	}
	if _, err := m.Metadata.SemVersion(); err != nil {
		return nil, fmt.Errorf("extension manifest version %q: %w", m.Metadata.Version, err)
	}
	return &m, nil
}

// A MethodDef is the JSON document returned by a resource's
// fn_get_method_def symbol: the raw function pointer of the method plus its
// declared layouts.
type MethodDef struct {
	FnPtr        uint64         `json:"fn_ptr"`
	InputLayout  *layout.Layout `json:"input_layout"`
	OutputLayout *layout.Layout `json:"output_layout"`
}
