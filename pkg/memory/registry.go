package memory

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/engramhq/engram/pkg/config"
)

// Registry maps persona names to their memory instances. It is built once
// at startup from configuration and passed by reference to every component
// that needs store access; nothing in this package reaches for ambient
// global state.
type Registry struct {
	personas map[string]*Persona
	archive  *Archive
	dataDir  string
}

// NewRegistry constructs every configured persona's tier stores plus the
// shared archive sink under dataDir.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	if len(cfg.Personas) == 0 {
		return nil, fmt.Errorf("memory: no personas configured")
	}
	r := &Registry{
		personas: make(map[string]*Persona, len(cfg.Personas)),
		archive:  NewArchive(filepath.Join(cfg.DataDir, "archive.jsonl")),
		dataDir:  cfg.DataDir,
	}
	for _, pc := range cfg.Personas {
		if _, ok := r.personas[pc.Name]; ok {
			return nil, fmt.Errorf("memory: duplicate persona %q", pc.Name)
		}
		r.personas[pc.Name] = NewPersona(pc, cfg.DataDir)
	}
	return r, nil
}

// Persona returns the named persona, or nil when it is not registered.
func (r *Registry) Persona(name string) *Persona {
	return r.personas[name]
}

// Names returns the registered persona names in sorted order, giving
// lifecycle passes a deterministic sweep order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.personas))
	for name := range r.personas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Archive returns the shared append-only cold store.
func (r *Registry) Archive() *Archive { return r.archive }

// DataDir returns the root data directory the registry was built under.
func (r *Registry) DataDir() string { return r.dataDir }
