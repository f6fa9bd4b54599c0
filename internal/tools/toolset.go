// ABOUTME: Fixed, ordered tool collections with schema-validated dispatch.
// ABOUTME: Backs both MCP handlers: list-tools and call-tool.

package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Arguments is the decoded argument object of a tool call.
type Arguments map[string]any

// String returns the string argument named key.
func (a Arguments) String(key string) (string, bool) {
	s, ok := a[key].(string)
	return s, ok
}

// Float returns the numeric argument named key. JSON numbers decode as float64.
func (a Arguments) Float(key string) (float64, bool) {
	f, ok := a[key].(float64)
	return f, ok
}

// Without returns a shallow copy of a lacking key.
func (a Arguments) Without(key string) Arguments {
	out := make(Arguments, len(a))
	for k, v := range a {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// Handler executes a tool. It must not panic on malformed input; the toolset
// has already validated args against the tool's schema.
type Handler func(ctx context.Context, args Arguments) Result

// Tool is a callable capability with its advertised metadata.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Handler     Handler
}

// Descriptor is the static metadata returned by list-tools.
type Descriptor struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Required returns the schema's required property names.
func (d Descriptor) Required() []string {
	if d.InputSchema == nil {
		return nil
	}
	return d.InputSchema.Required
}

type registered struct {
	tool     Tool
	resolved *jsonschema.Resolved
}

// Toolset is an immutable set of tools in registration order.
type Toolset struct {
	ordered []*registered
	byName  map[string]*registered
}

// Toolset construction errors
var (
	ErrEmptyName     = errors.New("tool name is required")
	ErrDuplicateName = errors.New("duplicate tool name")
	ErrBadSchema     = errors.New("invalid input schema")
	ErrNoHandler     = errors.New("tool handler is required")
)

// NewToolset validates and indexes tools.
func NewToolset(ts ...Tool) (*Toolset, error) {
	s := &Toolset{
		ordered: make([]*registered, 0, len(ts)),
		byName:  make(map[string]*registered, len(ts)),
	}

	for _, t := range ts {
		if t.Name == "" {
			return nil, ErrEmptyName
		}
		if _, dup := s.byName[t.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, t.Name)
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoHandler, t.Name)
		}
		if t.InputSchema == nil || t.InputSchema.Type != "object" {
			return nil, fmt.Errorf("%w: %s: schema must have type object", ErrBadSchema, t.Name)
		}
		resolved, err := t.InputSchema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadSchema, t.Name, err)
		}

		r := &registered{tool: t, resolved: resolved}
		s.ordered = append(s.ordered, r)
		s.byName[t.Name] = r
	}

	return s, nil
}

// Has reports whether a tool named name is registered.
func (s *Toolset) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Descriptors returns the list-tools payload in registration order.
func (s *Toolset) Descriptors() []Descriptor {
	out := make([]Descriptor, len(s.ordered))
	for i, r := range s.ordered {
		out[i] = Descriptor{
			Name:        r.tool.Name,
			Description: r.tool.Description,
			InputSchema: r.tool.InputSchema,
		}
	}
	return out
}

// Call validates args and runs the named tool.
func (s *Toolset) Call(ctx context.Context, name string, args Arguments) Result {
	r, ok := s.byName[name]
	if !ok {
		return Failf(KindUnknownTool, nil, "Unknown tool: %s", name)
	}

	if args == nil {
		args = Arguments{}
	}
	if err := r.resolved.Validate(map[string]any(args)); err != nil {
		return Failf(KindValidation, err, "Invalid arguments for %s: %v", name, err)
	}

	return r.tool.Handler(ctx, args)
}

// ObjectSchema builds an object schema from property schemas.
func ObjectSchema(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}
