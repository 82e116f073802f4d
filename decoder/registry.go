package decoder

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds a Decoder for a topic
type Constructor func(topic string) (Decoder, error)

// Registry maps configured decoder names to constructors
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns a registry preloaded with the json, string and bytes decoders
func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[string]Constructor)}
	r.Register("json", func(string) (Decoder, error) { return JSON(), nil })
	r.Register("string", func(string) (Decoder, error) { return String(), nil })
	r.Register("bytes", func(string) (Decoder, error) { return Bytes(), nil })
	return r
}

func (r *Registry) Register(name string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[name] = c
}

func (r *Registry) Lookup(name string) (Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown decoder %q (registered: %v)", name, r.namesLocked())
	}
	return c, nil
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.constructors))
	for n := range r.constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ForTopics resolves each topic's decoder by name, falling back to defaultName
func (r *Registry) ForTopics(defaultName string, perTopic map[string]string) Factory {
	return func(topic string) (Decoder, error) {
		name := defaultName
		if n, ok := perTopic[topic]; ok {
			name = n
		}
		c, err := r.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("topic %s: %w", topic, err)
		}
		return c(topic)
	}
}
