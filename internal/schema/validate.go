package schema

import (
	"fmt"
	"strings"

	"github.com/example/secretctl/internal/secure"
)

// KeyResult is the validation outcome for a single key. Messages describe the
// failed predicate, never the value.
type KeyResult struct {
	Secret  string
	Key     string
	OK      bool
	Message string
}

// Result aggregates per-key validation outcomes for a run.
type Result struct {
	Keys []KeyResult
}

// OK reports whether every key passed.
func (r Result) OK() bool {
	for _, k := range r.Keys {
		if !k.OK {
			return false
		}
	}
	return true
}

// Failures returns the failing key results.
func (r Result) Failures() []KeyResult {
	var out []KeyResult
	for _, k := range r.Keys {
		if !k.OK {
			out = append(out, k)
		}
	}
	return out
}

// ValidationError is returned when one or more resolved values fail their
// declared predicates. It blocks all mutation.
type ValidationError struct {
	Failures []KeyResult
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Failures) == 0 {
		return "secret values failed validation"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "secret values failed validation (%d key(s)):\n", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "- %s/%s: %s\n", f.Secret, f.Key, f.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Validate evaluates every declared rule against the resolved values. It is
// pure: no state is read or written beyond briefly opening each sealed value.
// The values map is keyed by source variable.
func Validate(catalog *Catalog, values map[string]*secure.Value) Result {
	var result Result
	for _, spec := range catalog.Secrets {
		for _, key := range spec.Keys {
			result.Keys = append(result.Keys, validateKey(spec.Name, key, values[key.SourceVar]))
		}
	}
	return result
}

func validateKey(secretName string, key KeySpec, value *secure.Value) KeyResult {
	res := KeyResult{Secret: secretName, Key: key.Name, OK: true}
	if value == nil {
		res.OK = false
		res.Message = fmt.Sprintf("no resolved value for %s", key.SourceVar)
		return res
	}
	if value.Len() == 0 {
		res.OK = false
		res.Message = "resolved value is empty"
		return res
	}
	if key.Rule.MinLength > 0 && value.Len() < key.Rule.MinLength {
		res.OK = false
		res.Message = fmt.Sprintf("value is shorter than minLength=%d", key.Rule.MinLength)
		return res
	}
	if key.Rule.Pattern != "" {
		matched := false
		if err := value.Peek(func(plaintext []byte) error {
			matched = key.Rule.Matches(plaintext)
			return nil
		}); err != nil {
			res.OK = false
			res.Message = fmt.Sprintf("inspect value: %v", err)
			return res
		}
		if !matched {
			res.OK = false
			res.Message = fmt.Sprintf("value does not match pattern %q", key.Rule.Pattern)
			return res
		}
	}
	return res
}
