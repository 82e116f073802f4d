package partitioner

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Constructor builds a Partitioner in the given location
type Constructor func(loc *time.Location) Partitioner

type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns a registry preloaded with the hourly and daily partitioners
func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[string]Constructor)}
	r.Register("hourly", func(loc *time.Location) Partitioner { return Hourly(WithLocation(loc)) })
	r.Register("daily", func(loc *time.Location) Partitioner { return Daily(WithLocation(loc)) })
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
		names := make([]string, 0, len(r.constructors))
		for n := range r.constructors {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown partitioner %q (registered: %v)", name, names)
	}
	return c, nil
}

// ForTopics builds every configured partitioner up front and returns a resolver over them.
// Unknown names fail here rather than at commit time.
func (r *Registry) ForTopics(defaultName string, perTopic map[string]string, loc *time.Location) (Resolver, error) {
	if loc == nil {
		loc = time.UTC
	}

	build := func(name string) (Partitioner, error) {
		c, err := r.Lookup(name)
		if err != nil {
			return nil, err
		}
		return c(loc), nil
	}

	def, err := build(defaultName)
	if err != nil {
		return nil, err
	}

	byTopic := make(map[string]Partitioner, len(perTopic))
	for topic, name := range perTopic {
		p, err := build(name)
		if err != nil {
			return nil, fmt.Errorf("topic %s: %w", topic, err)
		}
		byTopic[topic] = p
	}

	return func(topic string) (Partitioner, error) {
		if p, ok := byTopic[topic]; ok {
			return p, nil
		}
		return def, nil
	}, nil
}
