package resource

import (
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/mna/jyafn/lang/extension"
)

const externalTag = "external"

func init() {
	err := RegisterType(externalTag, func(config []byte) (Type, error) {
		var e External
		if err := json.Unmarshal(config, &e); err != nil {
			return nil, fmt.Errorf("decoding external resource config: %w", err)
		}
		return &e, nil
	})
	if err != nil {
		panic(err)
	}
}

// External is the resource type backed by a loadable extension. It is
// identified by the extension name, a semver requirement on its version, and
// the resource type name within the extension.
type External struct {
	Extension  string `json:"extension"`
	VersionReq string `json:"version_req"`
	Resource   string `json:"resource"`
}

var _ Type = (*External)(nil)

func (e *External) Tag() string { return externalTag }

func (e *External) Config() ([]byte, error) {
	return json.Marshal(e)
}

func (e *External) load() (*extension.Extension, *extension.ResourceSymbols, error) {
	req, err := semver.NewConstraint(e.VersionReq)
	if err != nil {
		return nil, nil, fmt.Errorf("version requirement %q: %w", e.VersionReq, err)
	}
	ext, err := extension.TryGet(e.Extension, req)
	if err != nil {
		return nil, nil, err
	}
	rs, ok := ext.Resource(e.Resource)
	if !ok {
		return nil, nil, fmt.Errorf("extension %s has no resource type named %s",
			e.Extension, e.Resource)
	}
	return ext, rs, nil
}

// FromBytes loads the extension, then builds the resource through the
// extension's fn_from_bytes. This is the only way to create an external
// resource, which guarantees the extension is resident before any method
// pointer is taken.
func (e *External) FromBytes(data []byte) (Resource, error) {
	ext, rs, err := e.load()
	if err != nil {
		return nil, err
	}
	ptr, err := ext.ResourceFromBytes(rs, data)
	if err != nil {
		return nil, fmt.Errorf("loading resource for %s/%s: %w", e.Extension, e.Resource, err)
	}
	return &externalResource{typ: *e, ext: ext, syms: rs, ptr: ptr}, nil
}

type externalResource struct {
	typ  External
	ext  *extension.Extension
	syms *extension.ResourceSymbols
	ptr  uintptr
}

func (r *externalResource) Type() Type {
	t := r.typ
	return &t
}

func (r *externalResource) Dump() ([]byte, error) {
	return r.ext.ResourceDump(r.syms, r.ptr)
}

func (r *externalResource) Size() int {
	return int(r.syms.Size(r.ptr))
}

func (r *externalResource) RawPtr() uintptr { return r.ptr }

func (r *externalResource) GetMethod(name string) (*Method, bool) {
	def, ok, err := r.ext.ResourceMethodDef(r.syms, r.ptr, name)
	if !ok || err != nil {
		return nil, false
	}
	return &Method{
		FnPtr:        uintptr(def.FnPtr),
		InputLayout:  def.InputLayout,
		OutputLayout: def.OutputLayout,
	}, true
}
