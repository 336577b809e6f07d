// Package resolve gathers credential values for the declared secret catalog
// from layered sources: the process environment snapshot, an optional local
// override file, an optional read-through secret store, and, for keys that opt
// in, a secure-random generator. All misses are collected into one error so an
// operator sees the complete list in a single pass.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/example/secretctl/internal/schema"
	"github.com/example/secretctl/internal/secure"
)

// Source tiers, highest priority first.
const (
	TierEnvironment = "environment"
	TierFile        = "override-file"
	TierStore       = "store"
	TierGenerated   = "generated"
)

// Value is one resolved credential with its provenance.
type Value struct {
	SourceVar string
	Secret    *secure.Value
	Tier      string
}

// Generated reports whether the value was produced by the generator tier.
func (v *Value) Generated() bool {
	return v != nil && v.Tier == TierGenerated
}

// StoreSource is the optional read-through secret store tier.
type StoreSource interface {
	// Lookup returns the value for a source variable, ok=false when the store
	// has no entry for it. Errors are reserved for store failures.
	Lookup(ctx context.Context, name string) (string, bool, error)
}

// MissingKey names one unresolvable source variable and the keys needing it.
type MissingKey struct {
	SourceVar string
	UsedBy    []string
}

// MissingValueError reports every source variable the resolver could not
// satisfy. It blocks all mutation.
type MissingValueError struct {
	Missing []MissingKey
}

func (e *MissingValueError) Error() string {
	if e == nil || len(e.Missing) == 0 {
		return "required secret values are missing"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "required secret values are missing (%d variable(s)):\n", len(e.Missing))
	for _, m := range e.Missing {
		fmt.Fprintf(&b, "- %s (needed by %s)\n", m.SourceVar, strings.Join(m.UsedBy, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Resolver holds the layered sources for one run. It is built once from an
// environment snapshot captured at startup; nothing here reads the ambient
// environment directly.
type Resolver struct {
	env   map[string]string
	file  map[string]string
	store StoreSource
}

// Options configure resolver construction.
type Options struct {
	// Environ is the process environment snapshot, os.Environ() form.
	Environ []string
	// OverridePath points at an optional key=value override file. Empty means
	// no file tier; a named file that does not exist is a configuration error.
	OverridePath string
	// Store is the optional secret store tier, nil to disable.
	Store StoreSource
}

// New builds a resolver from the given sources.
func New(opts Options) (*Resolver, error) {
	env := make(map[string]string, len(opts.Environ))
	for _, kv := range opts.Environ {
		if idx := strings.IndexByte(kv, '='); idx > 0 {
			env[kv[:idx]] = kv[idx+1:]
		}
	}
	r := &Resolver{env: env, store: opts.Store}
	if opts.OverridePath != "" {
		file, err := loadOverrideFile(opts.OverridePath)
		if err != nil {
			return nil, err
		}
		r.file = file
	}
	return r, nil
}

// Resolve gathers one value per distinct source variable in the catalog.
// It never stops at the first miss; the returned MissingValueError names
// every variable that could not be satisfied.
func (r *Resolver) Resolve(ctx context.Context, catalog *schema.Catalog) (map[string]*Value, error) {
	usedBy := map[string][]string{}
	order := []string{}
	generatable := map[string]bool{}
	for _, spec := range catalog.Secrets {
		for _, key := range spec.Keys {
			if _, seen := usedBy[key.SourceVar]; !seen {
				order = append(order, key.SourceVar)
			}
			usedBy[key.SourceVar] = append(usedBy[key.SourceVar], spec.Name+"/"+key.Name)
			if key.Generatable {
				generatable[key.SourceVar] = true
			}
		}
	}

	values := make(map[string]*Value, len(order))
	var missing []MissingKey
	for _, name := range order {
		val, err := r.resolveOne(ctx, name, generatable[name])
		if err != nil {
			return nil, err
		}
		if val == nil {
			missing = append(missing, MissingKey{SourceVar: name, UsedBy: usedBy[name]})
			continue
		}
		values[name] = val
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i].SourceVar < missing[j].SourceVar })
		return nil, &MissingValueError{Missing: missing}
	}
	return values, nil
}

func (r *Resolver) resolveOne(ctx context.Context, name string, generatable bool) (*Value, error) {
	if raw, ok := r.env[name]; ok && raw != "" {
		return &Value{SourceVar: name, Secret: secure.NewValueFromString(raw), Tier: TierEnvironment}, nil
	}
	if raw, ok := r.file[name]; ok && raw != "" {
		return &Value{SourceVar: name, Secret: secure.NewValueFromString(raw), Tier: TierFile}, nil
	}
	if r.store != nil {
		raw, ok, err := r.store.Lookup(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("store lookup for %s: %w", name, err)
		}
		if ok && raw != "" {
			return &Value{SourceVar: name, Secret: secure.NewValueFromString(raw), Tier: TierStore}, nil
		}
	}
	if generatable {
		generated, err := generateValue()
		if err != nil {
			return nil, fmt.Errorf("generate value for %s: %w", name, err)
		}
		return &Value{SourceVar: name, Secret: generated, Tier: TierGenerated}, nil
	}
	return nil, nil
}
