package schema

import (
	"strings"
	"testing"

	"github.com/example/secretctl/internal/secure"
)

func testCatalog() *Catalog {
	return &Catalog{Secrets: []SecretSpec{
		{Name: "alpha", Keys: []KeySpec{
			{Name: "token", SourceVar: "ALPHA_TOKEN", Rule: Rule{MinLength: 8, Pattern: "^[a-z0-9-]+$"}},
		}},
		{Name: "beta", Keys: []KeySpec{
			{Name: "user", SourceVar: "BETA_USER"},
			{Name: "pass", SourceVar: "BETA_PASS", Rule: Rule{MinLength: 12}},
		}},
	}}
}

func TestValidateAllPass(t *testing.T) {
	values := map[string]*secure.Value{
		"ALPHA_TOKEN": secure.NewValueFromString("abc-123-def"),
		"BETA_USER":   secure.NewValueFromString("svc-beta"),
		"BETA_PASS":   secure.NewValueFromString("longenoughpassword"),
	}
	result := Validate(testCatalog(), values)
	if !result.OK() {
		t.Fatalf("expected pass, got failures: %+v", result.Failures())
	}
	if len(result.Keys) != 3 {
		t.Fatalf("expected 3 key results, got %d", len(result.Keys))
	}
}

func TestValidateAggregatesFailures(t *testing.T) {
	values := map[string]*secure.Value{
		"ALPHA_TOKEN": secure.NewValueFromString("NOPE UPPER"),
		"BETA_USER":   secure.NewValueFromString("svc-beta"),
		"BETA_PASS":   secure.NewValueFromString("short"),
	}
	result := Validate(testCatalog(), values)
	if result.OK() {
		t.Fatal("expected failures")
	}
	failures := result.Failures()
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %d: %+v", len(failures), failures)
	}
}

func TestValidateMissingValueFails(t *testing.T) {
	result := Validate(testCatalog(), map[string]*secure.Value{})
	if result.OK() {
		t.Fatal("expected failures for missing values")
	}
	if len(result.Failures()) != 3 {
		t.Fatalf("expected 3 failures, got %d", len(result.Failures()))
	}
}

func TestValidationErrorNeverContainsValue(t *testing.T) {
	const fixture = "s3cr3t-test-value-123"
	catalog := &Catalog{Secrets: []SecretSpec{
		{Name: "alpha", Keys: []KeySpec{
			{Name: "token", SourceVar: "ALPHA_TOKEN", Rule: Rule{MinLength: 64}},
		}},
	}}
	values := map[string]*secure.Value{"ALPHA_TOKEN": secure.NewValueFromString(fixture)}
	result := Validate(catalog, values)
	if result.OK() {
		t.Fatal("expected failure")
	}
	err := &ValidationError{Failures: result.Failures()}
	if strings.Contains(err.Error(), fixture) {
		t.Fatalf("validation error leaked the value: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "alpha/token") {
		t.Fatalf("error should name secret and key: %s", err.Error())
	}
}
