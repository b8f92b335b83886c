// Package resource implements the opaque, pinned values with named typed
// methods that graphs can call into. A resource lives in a container that is
// address-stable after construction: compiled code embeds both the resource
// pointer and the method function pointers as immediates. Resource types
// come either from loadable extensions (see External) or from host code
// registering an in-process type.
package resource

import (
	"fmt"
	"sync"

	"github.com/mna/jyafn/lang/layout"
)

// A Method describes one callable method of a resource: the C-callable
// function pointer emitted code will invoke, plus the declared layouts of
// its packed input and output buffers.
//
// The call ABI is method(container, in_ptr, in_slots, out_ptr, out_slots),
// returning 0 on success or a pointer to an error object whose ownership
// transfers to the caller.
type Method struct {
	FnPtr        uintptr
	InputLayout  *layout.Layout
	OutputLayout *layout.Layout
}

// A Type creates resources of a given kind; think of it as the class object
// of resources. The tag identifies the type in serialized graphs.
type Type interface {
	Tag() string
	// Config returns the serialized configuration needed to rebuild this
	// type (may be nil).
	Config() ([]byte, error)
	// FromBytes parses the binary representation of a resource.
	FromBytes(data []byte) (Resource, error)
}

// A Resource is an immutable amount of data with named methods.
type Resource interface {
	Type() Type
	// Dump serializes the resource for the bundle's side file.
	Dump() ([]byte, error)
	// Size is the heap footprint, in bytes.
	Size() int
	// RawPtr is the stable value passed as the first argument of every
	// method call.
	RawPtr() uintptr
	// GetMethod returns the named method, if it exists.
	GetMethod(name string) (*Method, bool)
}

// A Container holds a resource and its type. Deserialization produces an
// uninitialized container (type only); the resource is attached from the
// bundle's side file before compilation.
type Container struct {
	typ      Type
	resource Resource
}

// NewContainer returns an initialized container for the resource.
func NewContainer(r Resource) *Container {
	return &Container{typ: r.Type(), resource: r}
}

// UninitializedContainer returns a container shell for the type.
func UninitializedContainer(t Type) *Container {
	return &Container{typ: t}
}

// Type returns the contained resource type.
func (c *Container) Type() Type { return c.typ }

// IsInitialized reports whether a resource has been attached.
func (c *Container) IsInitialized() bool { return c.resource != nil }

// Attach parses data with the container's type and installs the result.
func (c *Container) Attach(data []byte) error {
	r, err := c.typ.FromBytes(data)
	if err != nil {
		return err
	}
	c.resource = r
	return nil
}

// Dump serializes the contained resource.
func (c *Container) Dump() ([]byte, error) {
	if c.resource == nil {
		return nil, fmt.Errorf("resource not initialized")
	}
	return c.resource.Dump()
}

// Size returns the heap footprint of the contained resource.
func (c *Container) Size() int {
	if c.resource == nil {
		return 0
	}
	return c.resource.Size()
}

// RawPtr returns the stable pointer of the contained resource.
func (c *Container) RawPtr() uintptr {
	if c.resource == nil {
		return 0
	}
	return c.resource.RawPtr()
}

// GetMethod returns the named method of the contained resource.
func (c *Container) GetMethod(name string) (*Method, bool) {
	if c.resource == nil {
		return nil, false
	}
	return c.resource.GetMethod(name)
}

// The type registry resolves serialized tags back to constructors.
var (
	regMu    sync.RWMutex
	typeCtor = make(map[string]func(config []byte) (Type, error))
)

// RegisterType installs a constructor for a type tag. Registering a tag
// twice is an error.
func RegisterType(tag string, ctor func(config []byte) (Type, error)) error {
	regMu.Lock()
	defer regMu.Unlock()
	if _, ok := typeCtor[tag]; ok {
		return fmt.Errorf("resource type %q already registered", tag)
	}
	typeCtor[tag] = ctor
	return nil
}

// TypeFromTag rebuilds a resource type from its serialized tag and config.
func TypeFromTag(tag string, config []byte) (Type, error) {
	regMu.RLock()
	ctor := typeCtor[tag]
	regMu.RUnlock()
	if ctor == nil {
		return nil, fmt.Errorf("unknown resource type %q", tag)
	}
	return ctor(config)
}
