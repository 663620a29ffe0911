// Package profile reads participant profiles and friend lists owned by the
// user directory. The chat core never writes them.
package profile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"fuwachat/internal/model"
)

var ErrUnknownProfile = errors.New("profile not found")

// Lookup is the user directory as seen by the chat core.
type Lookup interface {
	Profile(ctx context.Context, id string) (model.Profile, error)
	Friends(ctx context.Context, id string) ([]string, error)
}

type record struct {
	model.Profile `yaml:",inline"`
	Friends       []string `yaml:"friends"`
}

type file struct {
	Profiles []record `yaml:"profiles"`
}

// Static is an in-memory Lookup, usually loaded from a YAML fixture:
//
//	profiles:
//	  - id: U1
//	    name: Alice
//	    icon: https://example.com/a.png
//	    friends: [U2]
type Static struct {
	mu       sync.RWMutex
	profiles map[string]record
}

var _ Lookup = (*Static)(nil)

// NewStatic returns an empty directory.
func NewStatic() *Static {
	return &Static{profiles: make(map[string]record)}
}

// Load reads a YAML fixture from path.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML fixture.
func Parse(data []byte) (*Static, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}
	s := NewStatic()
	for _, r := range f.Profiles {
		if r.ID == "" {
			return nil, fmt.Errorf("failed to parse profiles: entry without id")
		}
		s.Add(r.Profile, r.Friends...)
	}
	return s, nil
}

// Add inserts or replaces a profile.
func (s *Static) Add(p model.Profile, friends ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = record{Profile: p, Friends: append([]string(nil), friends...)}
}

func (s *Static) Profile(_ context.Context, id string) (model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.profiles[id]
	if !ok {
		return model.Profile{}, fmt.Errorf("%s: %w", id, ErrUnknownProfile)
	}
	return r.Profile, nil
}

func (s *Static) Friends(_ context.Context, id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownProfile)
	}
	return append([]string(nil), r.Friends...), nil
}

// Encode renders the directory as a YAML fixture, sorted by id.
func (s *Static) Encode() ([]byte, error) {
	s.mu.RLock()
	f := file{Profiles: make([]record, 0, len(s.profiles))}
	for _, r := range s.profiles {
		f.Profiles = append(f.Profiles, r)
	}
	s.mu.RUnlock()
	sort.Slice(f.Profiles, func(i, j int) bool { return f.Profiles[i].ID < f.Profiles[j].ID })
	return yaml.Marshal(f)
}
