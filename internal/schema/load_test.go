package schema

import (
	"strings"
	"testing"
)

const validCatalog = `
secrets:
  - name: alpha
    keys:
      - key: token
        sourceVar: ALPHA_TOKEN
        rule:
          minLength: 8
          pattern: "^[A-Za-z0-9_-]+$"
  - name: beta
    keys:
      - key: user
        sourceVar: BETA_USER
      - key: pass
        sourceVar: BETA_PASS
        generatable: true
`

func TestParseValidCatalog(t *testing.T) {
	catalog, err := Parse("secrets.yaml", []byte(validCatalog))
	if err != nil {
		t.Fatalf("expected valid catalog, got %v", err)
	}
	if len(catalog.Secrets) != 2 {
		t.Fatalf("expected 2 secrets, got %d", len(catalog.Secrets))
	}
	alpha := catalog.Secrets[0]
	if alpha.Name != "alpha" || len(alpha.Keys) != 1 {
		t.Fatalf("unexpected alpha spec: %+v", alpha)
	}
	if alpha.Keys[0].Rule.MinLength != 8 {
		t.Fatalf("expected minLength 8, got %d", alpha.Keys[0].Rule.MinLength)
	}
	if got := catalog.SourceVars(); len(got) != 3 || got[0] != "ALPHA_TOKEN" {
		t.Fatalf("unexpected source vars: %v", got)
	}
}

func TestParseRejectsStructuralProblems(t *testing.T) {
	cases := map[string]string{
		"no secrets":       `secrets: []`,
		"missing key name": "secrets:\n  - name: a\n    keys:\n      - sourceVar: A\n",
		"bad secret name":  "secrets:\n  - name: Not_Valid\n    keys:\n      - key: k\n        sourceVar: A\n",
		"bad source var":   "secrets:\n  - name: a\n    keys:\n      - key: k\n        sourceVar: not-a-var\n",
		"unknown field":    "secrets:\n  - name: a\n    keys:\n      - key: k\n        sourceVar: A\nextra: true\n",
	}
	for name, doc := range cases {
		if _, err := Parse("secrets.yaml", []byte(doc)); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	doc := `
secrets:
  - name: alpha
    keys:
      - key: token
        sourceVar: A
      - key: token
        sourceVar: B
  - name: alpha
    keys:
      - key: other
        sourceVar: C
`
	_, err := Parse("secrets.yaml", []byte(doc))
	if err == nil {
		t.Fatal("expected duplicate errors, got nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "declared more than once") {
		t.Fatalf("expected duplicate secret issue, got: %s", msg)
	}
	if !strings.Contains(msg, "declares key") {
		t.Fatalf("expected duplicate key issue, got: %s", msg)
	}
}

func TestParseRejectsInvalidPattern(t *testing.T) {
	doc := `
secrets:
  - name: alpha
    keys:
      - key: token
        sourceVar: A
        rule:
          pattern: "["
`
	_, err := Parse("secrets.yaml", []byte(doc))
	if err == nil {
		t.Fatal("expected pattern error, got nil")
	}
	if !strings.Contains(err.Error(), "invalid pattern") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseExternalBackendConfig(t *testing.T) {
	doc := `
secrets:
  - name: alpha
    keys:
      - key: token
        sourceVar: A
        remotePath: team/alpha
        remoteProperty: token
externalBackend:
  storeName: team-vault
  clusterScoped: true
  provider:
    vault:
      server: https://vault.example.com
`
	catalog, err := Parse("secrets.yaml", []byte(doc))
	if err != nil {
		t.Fatalf("expected valid catalog, got %v", err)
	}
	if catalog.ExternalBackend == nil || catalog.ExternalBackend.StoreName != "team-vault" {
		t.Fatalf("unexpected external backend: %+v", catalog.ExternalBackend)
	}
	if !catalog.ExternalBackend.ClusterScoped {
		t.Fatal("expected cluster scoped store")
	}
	if catalog.Secrets[0].Keys[0].RemotePath != "team/alpha" {
		t.Fatalf("unexpected remote path: %q", catalog.Secrets[0].Keys[0].RemotePath)
	}
}
