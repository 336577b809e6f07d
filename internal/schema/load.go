package schema

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"sigs.k8s.io/yaml"
)

// catalogSchema structurally validates the catalog document before it is
// decoded, so malformed declarations fail pre-flight with a position instead
// of a zero value deep in the run.
const catalogSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["secrets"],
  "additionalProperties": false,
  "properties": {
    "secrets": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "keys"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "pattern": "^[a-z0-9]([-a-z0-9]*[a-z0-9])?$", "maxLength": 253},
          "keys": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["key", "sourceVar"],
              "additionalProperties": false,
              "properties": {
                "key": {"type": "string", "minLength": 1},
                "sourceVar": {"type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*$"},
                "generatable": {"type": "boolean"},
                "remotePath": {"type": "string"},
                "remoteProperty": {"type": "string"},
                "rule": {
                  "type": "object",
                  "additionalProperties": false,
                  "properties": {
                    "minLength": {"type": "integer", "minimum": 0},
                    "pattern": {"type": "string"}
                  }
                }
              }
            }
          }
        }
      }
    },
    "store": {
      "type": "object",
      "required": ["type"],
      "additionalProperties": false,
      "properties": {
        "type": {"type": "string", "enum": ["vault"]},
        "address": {"type": "string"},
        "namespace": {"type": "string"},
        "mount": {"type": "string"},
        "pathPrefix": {"type": "string"},
        "kvVersion": {"type": "integer", "enum": [1, 2]}
      }
    },
    "externalBackend": {
      "type": "object",
      "required": ["storeName", "provider"],
      "additionalProperties": false,
      "properties": {
        "storeName": {"type": "string", "minLength": 1},
        "clusterScoped": {"type": "boolean"},
        "refreshInterval": {"type": "string"},
        "provider": {"type": "object"}
      }
    }
  }
}`

// ConfigError reports a malformed catalog. It is always fatal and always
// raised before any cluster mutation.
type ConfigError struct {
	Path   string
	Issues []string
}

func (e *ConfigError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "secret catalog is invalid"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "secret catalog %s is invalid (%d issue(s)):\n", e.Path, len(e.Issues))
	for _, issue := range e.Issues {
		fmt.Fprintf(&b, "- %s\n", issue)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Load reads, validates, and compiles a catalog file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secret catalog %q: %w", path, err)
	}
	return Parse(path, raw)
}

// Parse validates and compiles catalog bytes. The path is used in messages only.
func Parse(path string, raw []byte) (*Catalog, error) {
	jsonData, err := yaml.YAMLToJSON(raw)
	if err != nil {
		return nil, &ConfigError{Path: path, Issues: []string{fmt.Sprintf("parse yaml: %v", err)}}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(catalogSchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return nil, &ConfigError{Path: path, Issues: []string{fmt.Sprintf("validate structure: %v", err)}}
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return nil, &ConfigError{Path: path, Issues: issues}
	}

	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, &ConfigError{Path: path, Issues: []string{fmt.Sprintf("decode: %v", err)}}
	}
	if issues := compile(&catalog); len(issues) > 0 {
		return nil, &ConfigError{Path: path, Issues: issues}
	}
	return &catalog, nil
}

// compile enforces the invariants the JSON schema cannot express and compiles
// rule patterns once.
func compile(catalog *Catalog) []string {
	var issues []string
	seenSecrets := map[string]struct{}{}
	for si := range catalog.Secrets {
		secret := &catalog.Secrets[si]
		if _, dup := seenSecrets[secret.Name]; dup {
			issues = append(issues, fmt.Sprintf("secret %q is declared more than once", secret.Name))
		}
		seenSecrets[secret.Name] = struct{}{}

		seenKeys := map[string]struct{}{}
		for ki := range secret.Keys {
			key := &secret.Keys[ki]
			if _, dup := seenKeys[key.Name]; dup {
				issues = append(issues, fmt.Sprintf("secret %q declares key %q more than once", secret.Name, key.Name))
			}
			seenKeys[key.Name] = struct{}{}
			if key.Rule.Pattern != "" {
				re, err := regexp.Compile(key.Rule.Pattern)
				if err != nil {
					issues = append(issues, fmt.Sprintf("secret %q key %q: invalid pattern %q: %v", secret.Name, key.Name, key.Rule.Pattern, err))
					continue
				}
				key.Rule.compiled = re
			}
		}
	}
	return issues
}
