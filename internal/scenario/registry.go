package scenario

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Registry holds every loaded scenario by id.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Scenario
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Scenario)}
}

// LoadDir loads every .yaml/.yml file in dir. Files that fail to parse
// or validate are logged and skipped, so one bad document never blocks
// the rest of the fleet.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read scenario dir: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[SCENARIO] read %s: %v", path, err)
			continue
		}
		sc, issues, err := Load(raw)
		if err != nil {
			log.Printf("[SCENARIO] load %s: %v", path, err)
			continue
		}
		if len(issues) > 0 {
			for _, issue := range issues {
				log.Printf("[SCENARIO] %s: %s", path, issue.String())
			}
			continue
		}
		r.Put(sc)
		loaded++
	}
	log.Printf("[SCENARIO] loaded %d scenario(s) from %s", loaded, dir)
	return nil
}

// Put registers or replaces a scenario.
func (r *Registry) Put(sc *Scenario) {
	r.mu.Lock()
	r.byID[sc.ID] = sc
	r.mu.Unlock()
}

// Get returns the scenario by id.
func (r *Registry) Get(id string) (*Scenario, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sc, ok := r.byID[id]
	return sc, ok
}

// IDs returns the registered scenario ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
