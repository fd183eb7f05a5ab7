// Package expand turns an environment snapshot into the concrete list of
// fetcher instances for one run.
//
// Multiplication groups are numbered clusters of variables of the shape
// PREFIX_<index>_<KEY> (GITLAB_PROJECT_1_URL, AWS_REGION_2_FETCHERS, ...),
// each describing one additional target a fetcher should run against.
// Catalog fetchers not claimed by any group run once, unbound, against the
// ambient defaults.
package expand

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ComplyOps/Gatherer/internal/catalog"
	"github.com/ComplyOps/Gatherer/internal/model"
)

// Defaults are the ambient values unbound instances run against.
type Defaults struct {
	Profile string
	Region  string
	// Timeout is zero unless FETCHER_TIMEOUT is set.
	Timeout time.Duration
}

// Expansion is the result of expanding one environment snapshot.
// Instances lists multi-instance entries first, then standard ones;
// discovery order is preserved within each category.
type Expansion struct {
	Instances []model.FetcherInstance
	Defaults  Defaults

	// DroppedGroups lists groups excluded for missing mandatory keys,
	// as "<prefix><index>". Incomplete configuration is not an error.
	DroppedGroups []string
	// UnknownFetchers lists names referenced by a FETCHERS value but
	// absent from the catalog.
	UnknownFetchers []string
}

// Environ is a validated environment snapshot. Duplicate variable names
// are rejected at parse time, so expansion never depends on iteration
// order.
type Environ struct {
	vars  map[string]string
	order []string
}

// ParseEnviron parses KEY=VALUE pairs as returned by os.Environ.
func ParseEnviron(environ []string) (Environ, error) {
	vars := make(map[string]string, len(environ))
	order := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		if _, dup := vars[name]; dup {
			return Environ{}, fmt.Errorf("%w: %s", model.ErrDuplicateVariable, name)
		}
		vars[name] = value
		order = append(order, name)
	}
	return Environ{vars: vars, order: order}, nil
}

// Get returns the value of name, or "" when unset.
func (e Environ) Get(name string) string {
	return e.vars[name]
}

func (e Environ) Lookup(name string) (string, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// groupKind describes one multiplication-group prefix: which keys it
// requires, how recognized keys bind, and under which namespace the rest
// pass through to the child environment.
type groupKind struct {
	prefix    string
	label     string
	envPrefix string
	mandatory []string
	bind      func(group map[string]string, defaults Defaults) (model.TargetBinding, []string)
}

var kinds = []groupKind{
	{
		prefix:    "GITLAB_PROJECT_",
		label:     "project",
		envPrefix: "GITLAB_",
		mandatory: []string{"URL", "API_ACCESS_TOKEN", "ID", "FETCHERS"},
		bind: func(group map[string]string, defaults Defaults) (model.TargetBinding, []string) {
			// GitLab fetchers read their target from the environment,
			// not from the positional profile/region arguments.
			binding := model.TargetBinding{
				Profile:   defaults.Profile,
				Region:    defaults.Region,
				ProjectID: group["ID"],
				ExtraEnv: map[string]string{
					"GITLAB_URL":        group["URL"],
					"GITLAB_API_TOKEN":  group["API_ACCESS_TOKEN"],
					"GITLAB_PROJECT_ID": group["ID"],
				},
			}
			return binding, []string{"URL", "API_ACCESS_TOKEN", "ID", "FETCHERS"}
		},
	},
	{
		prefix:    "AWS_REGION_",
		label:     "region",
		envPrefix: "AWS_",
		mandatory: []string{"FETCHERS"},
		bind: func(group map[string]string, defaults Defaults) (model.TargetBinding, []string) {
			binding := model.TargetBinding{
				Profile: group["PROFILE"],
				Region:  group["REGION"],
			}
			if binding.Profile == "" {
				binding.Profile = defaults.Profile
			}
			if binding.Region == "" {
				binding.Region = defaults.Region
			}
			return binding, []string{"PROFILE", "REGION", "FETCHERS"}
		},
	},
}

type group struct {
	kind  groupKind
	index string
	vars  map[string]string
}

func (g group) id() string { return g.kind.prefix + g.index }

// Expand produces the run's instance list from the snapshot and catalog.
func Expand(env Environ, cat *catalog.Catalog) (Expansion, error) {
	defaults, err := ambientDefaults(env)
	if err != nil {
		return Expansion{}, err
	}

	groups := discoverGroups(env)

	var out Expansion
	out.Defaults = defaults
	covered := make(map[string]bool)

	for _, g := range groups {
		if missing := missingKeys(g); missing != "" {
			// Partial groups preserve in-progress configuration;
			// they are excluded, not failed.
			out.DroppedGroups = append(out.DroppedGroups, g.id())
			continue
		}

		binding, consumed := g.kind.bind(g.vars, defaults)
		passthrough(&binding, g, consumed)

		for _, name := range splitList(g.vars["FETCHERS"]) {
			def, ok := cat.Lookup(name)
			if !ok {
				out.UnknownFetchers = append(out.UnknownFetchers, name)
				continue
			}
			covered[name] = true
			out.Instances = append(out.Instances, model.FetcherInstance{
				Fetcher:      def,
				InstanceName: fmt.Sprintf("%s_%s_%s", name, g.kind.label, g.index),
				Binding:      binding,
				ExtraFlags:   extraFlags(env, name),
			})
		}
	}

	// Catalog fetchers not claimed by any group run once, unbound.
	for _, def := range cat.Definitions() {
		if covered[def.Name] {
			continue
		}
		out.Instances = append(out.Instances, model.FetcherInstance{
			Fetcher:      def,
			InstanceName: def.Name,
			Binding: model.TargetBinding{
				Profile: defaults.Profile,
				Region:  defaults.Region,
			},
			ExtraFlags: extraFlags(env, def.Name),
		})
	}

	return out, nil
}

// discoverGroups collects PREFIX_<index>_<KEY> variables, grouped by
// (prefix, index) in snapshot order.
func discoverGroups(env Environ) []group {
	byID := make(map[string]*group)
	var order []string

	for _, name := range env.order {
		for _, kind := range kinds {
			rest, ok := strings.CutPrefix(name, kind.prefix)
			if !ok {
				continue
			}
			index, key, ok := strings.Cut(rest, "_")
			if !ok || index == "" || key == "" {
				continue
			}
			id := kind.prefix + index
			g, ok := byID[id]
			if !ok {
				g = &group{kind: kind, index: index, vars: make(map[string]string)}
				byID[id] = g
				order = append(order, id)
			}
			g.vars[key] = env.vars[name]
			break
		}
	}

	groups := make([]group, 0, len(order))
	for _, id := range order {
		groups = append(groups, *byID[id])
	}
	return groups
}

func missingKeys(g group) string {
	for _, key := range g.kind.mandatory {
		if g.vars[key] == "" {
			return key
		}
	}
	return ""
}

// passthrough copies unrecognized group keys into the binding's extra
// environment, namespaced by the group's service prefix
// (GITLAB_PROJECT_1_FILE_PATTERNS becomes GITLAB_FILE_PATTERNS).
func passthrough(binding *model.TargetBinding, g group, consumed []string) {
	skip := make(map[string]bool, len(consumed))
	for _, key := range consumed {
		skip[key] = true
	}
	for key, value := range g.vars {
		if skip[key] {
			continue
		}
		if binding.ExtraEnv == nil {
			binding.ExtraEnv = make(map[string]string)
		}
		binding.ExtraEnv[g.kind.envPrefix+key] = value
	}
}

// extraFlags reads the per-fetcher <FETCHERNAME>_FETCHER override: extra
// CLI flags appended to the subprocess invocation, space separated.
func extraFlags(env Environ, fetcherName string) []string {
	raw := env.Get(strings.ToUpper(fetcherName) + "_FETCHER")
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}

func ambientDefaults(env Environ) (Defaults, error) {
	d := Defaults{
		Profile: env.Get("AWS_PROFILE"),
		Region:  env.Get("AWS_DEFAULT_REGION"),
	}
	if d.Region == "" {
		d.Region = env.Get("AWS_REGION")
	}

	if raw, ok := env.Lookup("FETCHER_TIMEOUT"); ok {
		secs, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || secs <= 0 {
			return Defaults{}, fmt.Errorf("parsing FETCHER_TIMEOUT %q: expected positive integer seconds", raw)
		}
		d.Timeout = time.Duration(secs) * time.Second
	}
	return d, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return names
}
