// Package extension loads shared objects that contribute resource types
// through a stable C ABI. An extension exposes a single well-known entry
// point, extension_init, returning a JSON manifest (see Manifest) that names
// every other symbol the host binds. Loaded extensions are cached
// per-process by name and version and are never unloaded: their function
// pointers are baked into compiled code.
package extension

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/ebitengine/purego"
)

// InitSymbol is the name of the initialization entry point.
const InitSymbol = "extension_init"

// OutcomeSymbols binds the accessors of the extension's outcome type.
type OutcomeSymbols struct {
	// GetErr returns a C string when the outcome is an error, else 0. Called
	// once per outcome.
	GetErr func(outcome uintptr) uintptr
	// GetOk returns the success value; undefined for error outcomes.
	GetOk func(outcome uintptr) uintptr
	// Drop releases the outcome. Called at most once, last.
	Drop func(outcome uintptr)
}

// DumpedSymbols binds the accessors of the extension's binary dump type.
type DumpedSymbols struct {
	GetPtr func(dumped uintptr) uintptr
	GetLen func(dumped uintptr) uint64
	Drop   func(dumped uintptr)
}

// StringSymbols binds the release function for extension-produced C strings.
type StringSymbols struct {
	Drop func(str uintptr)
}

// ResourceSymbols binds the five operations of one resource type.
type ResourceSymbols struct {
	FromBytes    func(ptr uintptr, length uint64) uintptr
	Dump         func(resource uintptr) uintptr
	Size         func(resource uintptr) uint64
	GetMethodDef func(resource uintptr, method uintptr) uintptr
	Drop         func(resource uintptr)
}

// An Extension is a loaded shared object and its bound symbols.
type Extension struct {
	handle    uintptr
	metadata  Metadata
	version   *semver.Version
	Outcome   OutcomeSymbols
	Dumped    DumpedSymbols
	String    StringSymbols
	resources map[string]*ResourceSymbols
}

// Name returns the advertised extension name.
func (e *Extension) Name() string { return e.metadata.Name }

// Version returns the advertised extension version.
func (e *Extension) Version() *semver.Version { return e.version }

// Resource returns the bound symbols of a resource type.
func (e *Extension) Resource(name string) (*ResourceSymbols, bool) {
	r, ok := e.resources[name]
	return r, ok
}

// ResourceNames lists the resource types contributed by this extension.
func (e *Extension) ResourceNames() []string {
	names := make([]string, 0, len(e.resources))
	for name := range e.resources {
		names = append(names, name)
	}
	return names
}

func bind[T any](handle uintptr, fptr *T, name string) error {
	if name == "" {
		return fmt.Errorf("empty symbol name")
	}
	sym, err := purego.Dlsym(handle, name)
	if err != nil {
		return fmt.Errorf("getting symbol %s: %w", name, err)
	}
	purego.RegisterFunc(fptr, sym)
	return nil
}

// Load opens the shared object at path, runs its init entry point and binds
// every symbol the manifest names. The init payload string is released with
// the extension's own string drop.
func Load(path string) (*Extension, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	initSym, err := purego.Dlsym(handle, InitSymbol)
	if err != nil {
		return nil, fmt.Errorf("%s has no %s entry point: %w", path, InitSymbol, err)
	}
	var initFn func() uintptr
	purego.RegisterFunc(&initFn, initSym)

	payloadPtr := callGuarded(initFn)
	if payloadPtr == 0 {
		return nil, fmt.Errorf("library %s failed to load", path)
	}
	manifest, err := ParseInitPayload([]byte(goString(payloadPtr)))
	if err != nil {
		return nil, fmt.Errorf("library %s: %w", path, err)
	}

	ext := &Extension{handle: handle, metadata: manifest.Metadata, resources: make(map[string]*ResourceSymbols)}
	ext.version, _ = manifest.Metadata.SemVersion()

	if err := bind(handle, &ext.String.Drop, manifest.String.FnDrop); err != nil {
		return nil, fmt.Errorf("loading string symbols from %s: %w", path, err)
	}
	// the init payload belongs to the extension
	ext.String.Drop(payloadPtr)

	if err := firstErr(
		bind(handle, &ext.Outcome.GetErr, manifest.Outcome.FnGetErr),
		bind(handle, &ext.Outcome.GetOk, manifest.Outcome.FnGetOk),
		bind(handle, &ext.Outcome.Drop, manifest.Outcome.FnDrop),
	); err != nil {
		return nil, fmt.Errorf("loading outcome symbols from %s: %w", path, err)
	}
	if err := firstErr(
		bind(handle, &ext.Dumped.GetPtr, manifest.Dumped.FnGetPtr),
		bind(handle, &ext.Dumped.GetLen, manifest.Dumped.FnGetLen),
		bind(handle, &ext.Dumped.Drop, manifest.Dumped.FnDrop),
	); err != nil {
		return nil, fmt.Errorf("loading dumped symbols from %s: %w", path, err)
	}

	for name, rm := range manifest.Resources {
		rs := &ResourceSymbols{}
		if err := firstErr(
			bind(handle, &rs.FromBytes, rm.FnFromBytes),
			bind(handle, &rs.Dump, rm.FnDump),
			bind(handle, &rs.Size, rm.FnSize),
			bind(handle, &rs.GetMethodDef, rm.FnGetMethodDef),
			bind(handle, &rs.Drop, rm.FnDrop),
		); err != nil {
			return nil, fmt.Errorf("loading resource %q from %s: %w", name, path, err)
		}
		ext.resources[name] = rs
	}

	return ext, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// OutcomeToResult consumes a raw outcome and returns the success value or
// the extension-reported error.
func (e *Extension) OutcomeToResult(outcome uintptr) (uintptr, error) {
	defer e.Outcome.Drop(outcome)
	if errPtr := e.Outcome.GetErr(outcome); errPtr != 0 {
		return 0, fmt.Errorf("%s", goString(errPtr))
	}
	return e.Outcome.GetOk(outcome), nil
}

// DumpedToBytes consumes a raw dump and copies its bytes.
func (e *Extension) DumpedToBytes(dumped uintptr) ([]byte, error) {
	defer e.Dumped.Drop(dumped)
	ptr := e.Dumped.GetPtr(dumped)
	if ptr == 0 {
		return nil, fmt.Errorf("dump location was null")
	}
	return copyBytes(ptr, e.Dumped.GetLen(dumped)), nil
}

// TakeString consumes an extension-produced C string.
func (e *Extension) TakeString(str uintptr) string {
	if str == 0 {
		return ""
	}
	defer e.String.Drop(str)
	return goString(str)
}

// ResourceFromBytes parses a binary representation through the resource
// type's fn_from_bytes and returns the raw resource pointer.
func (e *Extension) ResourceFromBytes(rs *ResourceSymbols, data []byte) (uintptr, error) {
	var addr uintptr
	if len(data) > 0 {
		addr = bytesAddr(data)
	}
	outcome := rs.FromBytes(addr, uint64(len(data)))
	if outcome == 0 {
		return 0, fmt.Errorf("from_bytes returned a null outcome")
	}
	ptr, err := e.OutcomeToResult(outcome)
	if err != nil {
		return 0, err
	}
	if ptr == 0 {
		return 0, fmt.Errorf("loaded resource from bytes was null")
	}
	return ptr, nil
}

// ResourceDump serializes a raw resource through fn_dump.
func (e *Extension) ResourceDump(rs *ResourceSymbols, resource uintptr) ([]byte, error) {
	outcome := rs.Dump(resource)
	if outcome == 0 {
		return nil, fmt.Errorf("dumped resource was null")
	}
	dumped, err := e.OutcomeToResult(outcome)
	if err != nil {
		return nil, err
	}
	return e.DumpedToBytes(dumped)
}

// ResourceMethodDef queries a method definition through fn_get_method_def.
// It returns ok=false when the resource has no such method.
func (e *Extension) ResourceMethodDef(rs *ResourceSymbols, resource uintptr, method string) (*MethodDef, bool, error) {
	c := cString(method)
	defPtr := rs.GetMethodDef(resource, bytesAddr(c))
	if defPtr == 0 {
		return nil, false, nil
	}
	doc := e.TakeString(defPtr)
	var def MethodDef
	if err := json.Unmarshal([]byte(doc), &def); err != nil {
		return nil, false, fmt.Errorf("badly formed json from fn_get_method_def call: %w", err)
	}
	return &def, true, nil
}

// callGuarded runs an FFI entry point, turning a panic on the host side into
// a null result.
func callGuarded(fn func() uintptr) (res uintptr) {
	defer func() {
		if recover() != nil {
			res = 0
		}
	}()
	return fn()
}

// The process-wide registry: load is serialized, lookup is concurrent, and
// extensions stay resident for the life of the process.
var (
	regMu  sync.RWMutex
	loaded = make(map[string]map[string]*Extension)
)

// List returns the name and versions of every loaded extension.
func List() map[string][]string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make(map[string][]string, len(loaded))
	for name, versions := range loaded {
		for v := range versions {
			out[name] = append(out[name], v)
		}
	}
	return out
}
