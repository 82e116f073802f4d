package writer

import (
	"fmt"
	"sort"
	"strings"
)

// Constructor builds a provider for the configured codec
type Constructor func(codec Codec) Provider

type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry knows the "json" format
func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[string]Constructor)}
	r.Register("json", func(codec Codec) Provider { return NewJSONLines(codec) })
	return r
}

func (r *Registry) Register(name string, c Constructor) {
	r.constructors[name] = c
}

func (r *Registry) Build(format, codec string) (Provider, error) {
	c, ok := r.constructors[format]
	if !ok {
		names := make([]string, 0, len(r.constructors))
		for name := range r.constructors {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown writer format %q (registered: %s)", format, strings.Join(names, ", "))
	}

	parsed, err := ParseCodec(codec)
	if err != nil {
		return nil, err
	}
	return c(parsed), nil
}
