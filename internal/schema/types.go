// Package schema declares the secret catalog: which secrets exist, which keys
// each one carries, where every key's value comes from, and the predicates a
// resolved value must satisfy before anything touches the cluster.
package schema

import (
	"regexp"
	"sort"
)

// Rule is a declarative predicate evaluated against a resolved value. Rules
// never transform the value.
type Rule struct {
	MinLength int    `json:"minLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`

	compiled *regexp.Regexp
}

// Matches reports whether the value satisfies the pattern predicate. An empty
// pattern matches everything; a pattern that fails to compile matches nothing
// (Load rejects such catalogs pre-flight).
func (r Rule) Matches(value []byte) bool {
	if r.Pattern == "" {
		return true
	}
	re := r.compiled
	if re == nil {
		var err error
		re, err = regexp.Compile(r.Pattern)
		if err != nil {
			return false
		}
	}
	return re.Match(value)
}

// KeySpec describes one key of a managed secret.
type KeySpec struct {
	// Name is the data key inside the Secret resource.
	Name string `json:"key"`
	// SourceVar is the environment variable (or override-file key) the value
	// is resolved from.
	SourceVar string `json:"sourceVar"`
	// Generatable opts this key into secure-random generation when no source
	// provides a value. Generation is never the default.
	Generatable bool `json:"generatable,omitempty"`
	// RemotePath and RemoteProperty locate the value in an external secret
	// store when the external backend is used instead of literal values.
	RemotePath     string `json:"remotePath,omitempty"`
	RemoteProperty string `json:"remoteProperty,omitempty"`

	Rule Rule `json:"rule,omitempty"`
}

// SecretSpec describes one managed secret resource.
type SecretSpec struct {
	Name string    `json:"name"`
	Keys []KeySpec `json:"keys"`
}

// KeyNames returns the secret's data keys, sorted.
func (s SecretSpec) KeyNames() []string {
	names := make([]string, 0, len(s.Keys))
	for _, k := range s.Keys {
		names = append(names, k.Name)
	}
	sort.Strings(names)
	return names
}

// StoreConfig configures the optional read-through secret store tier used by
// the resolver (currently HashiCorp Vault KV).
type StoreConfig struct {
	Type       string `json:"type"`
	Address    string `json:"address,omitempty"`
	Namespace  string `json:"namespace,omitempty"`
	Mount      string `json:"mount,omitempty"`
	PathPrefix string `json:"pathPrefix,omitempty"`
	KVVersion  int    `json:"kvVersion,omitempty"`
}

// ExternalBackendConfig describes the store-connection resource the external
// backend adapter applies alongside per-secret reference resources.
type ExternalBackendConfig struct {
	// StoreName names the SecretStore (or ClusterSecretStore) resource.
	StoreName string `json:"storeName"`
	// ClusterScoped selects ClusterSecretStore over the namespaced kind.
	ClusterScoped bool `json:"clusterScoped,omitempty"`
	// RefreshInterval is forwarded to each ExternalSecret (default 1h).
	RefreshInterval string `json:"refreshInterval,omitempty"`
	// Provider is the store's provider block, passed through verbatim.
	Provider map[string]interface{} `json:"provider"`
}

// Catalog is the compiled set of secret declarations for one run.
type Catalog struct {
	Secrets         []SecretSpec           `json:"secrets"`
	Store           *StoreConfig           `json:"store,omitempty"`
	ExternalBackend *ExternalBackendConfig `json:"externalBackend,omitempty"`
}

// AllKeys returns every KeySpec across all secrets in declaration order.
func (c *Catalog) AllKeys() []KeySpec {
	var keys []KeySpec
	for _, s := range c.Secrets {
		keys = append(keys, s.Keys...)
	}
	return keys
}

// SourceVars returns the distinct source variables required by the catalog,
// sorted for stable reporting.
func (c *Catalog) SourceVars() []string {
	seen := map[string]struct{}{}
	var vars []string
	for _, k := range c.AllKeys() {
		if _, ok := seen[k.SourceVar]; ok {
			continue
		}
		seen[k.SourceVar] = struct{}{}
		vars = append(vars, k.SourceVar)
	}
	sort.Strings(vars)
	return vars
}
