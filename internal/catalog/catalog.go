// Package catalog loads the evidence fetchers catalog: the authoritative
// mapping from fetcher name to its metadata and executable script.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ComplyOps/Gatherer/internal/model"
)

type scriptEntry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ID          string `json:"id,omitempty"`
	ScriptFile  string `json:"script_file"`
}

type category struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Scripts     map[string]scriptEntry `json:"scripts"`
}

type document struct {
	Catalog struct {
		Version     string              `json:"version"`
		Description string              `json:"description"`
		LastUpdated string              `json:"last_updated"`
		Categories  map[string]category `json:"categories"`
	} `json:"evidence_fetchers_catalog"`
}

// Catalog is the read-only set of fetcher definitions for a run. Every
// script path is resolved and checked once at load time; there is no
// call-time path guessing.
type Catalog struct {
	byName map[string]model.FetcherDefinition
	names  []string
}

// Load reads and validates the catalog JSON at path. Relative script
// paths resolve against baseDir. A script file which does not exist, or a
// fetcher name claimed by two categories, fails the load.
func Load(path, baseDir string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var doc document
	dec := json.NewDecoder(f)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	if len(doc.Catalog.Categories) == 0 {
		return nil, fmt.Errorf("catalog %s: no categories", path)
	}

	byName := make(map[string]model.FetcherDefinition)
	for service, cat := range doc.Catalog.Categories {
		for fetcherName, entry := range cat.Scripts {
			if entry.ScriptFile == "" {
				return nil, fmt.Errorf("catalog %s: fetcher %q has no script_file", path, fetcherName)
			}
			if prev, ok := byName[fetcherName]; ok {
				return nil, fmt.Errorf("catalog %s: fetcher %q claimed by both %q and %q",
					path, fetcherName, prev.Service, service)
			}

			scriptPath := entry.ScriptFile
			if !filepath.IsAbs(scriptPath) {
				scriptPath = filepath.Join(baseDir, scriptPath)
			}
			info, err := os.Stat(scriptPath)
			if err != nil {
				return nil, fmt.Errorf("catalog %s: fetcher %q: %w", path, fetcherName, err)
			}
			if !info.Mode().IsRegular() {
				return nil, fmt.Errorf("catalog %s: fetcher %q: %s is not a regular file",
					path, fetcherName, scriptPath)
			}

			byName[fetcherName] = model.FetcherDefinition{
				Name:       fetcherName,
				Service:    service,
				ScriptPath: scriptPath,
			}
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Catalog{byName: byName, names: names}, nil
}

// Lookup returns the definition for a fetcher name.
func (c *Catalog) Lookup(name string) (model.FetcherDefinition, bool) {
	def, ok := c.byName[name]
	return def, ok
}

// Names returns all fetcher names, sorted.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Definitions returns all fetcher definitions, sorted by name.
func (c *Catalog) Definitions() []model.FetcherDefinition {
	defs := make([]model.FetcherDefinition, 0, len(c.names))
	for _, name := range c.names {
		defs = append(defs, c.byName[name])
	}
	return defs
}

func (c *Catalog) Len() int {
	return len(c.names)
}
