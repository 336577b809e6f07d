package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	k8sschema "k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/example/secretctl/internal/kube"
	"github.com/example/secretctl/internal/resolve"
	"github.com/example/secretctl/internal/schema"
	"github.com/example/secretctl/internal/secure"
)

const testNamespace = "apps"

func twoSecretCatalog() *schema.Catalog {
	return &schema.Catalog{Secrets: []schema.SecretSpec{
		{Name: "alpha", Keys: []schema.KeySpec{
			{Name: "token", SourceVar: "ALPHA_TOKEN"},
		}},
		{Name: "beta", Keys: []schema.KeySpec{
			{Name: "user", SourceVar: "BETA_USER"},
			{Name: "pass", SourceVar: "BETA_PASS"},
		}},
	}}
}

func valuesFrom(raw map[string]string) map[string]*resolve.Value {
	out := make(map[string]*resolve.Value, len(raw))
	for name, val := range raw {
		out[name] = &resolve.Value{
			SourceVar: name,
			Secret:    secure.NewValueFromString(val),
			Tier:      resolve.TierEnvironment,
		}
	}
	return out
}

func defaultValues() map[string]*resolve.Value {
	return valuesFrom(map[string]string{
		"ALPHA_TOKEN": "alpha-token-value",
		"BETA_USER":   "svc-beta",
		"BETA_PASS":   "beta-pass-value",
	})
}

func newTestReconciler(clientset *fake.Clientset, opts Options) *Reconciler {
	opts.Namespace = testNamespace
	return New(&kube.Client{Clientset: clientset}, opts)
}

func actionsByName(results []Result) map[string]Action {
	out := map[string]Action{}
	for _, r := range results {
		out[r.Secret] = r.Action
	}
	return out
}

func TestReconcileCreatesThenUnchanged(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	r := newTestReconciler(clientset, Options{})
	catalog := twoSecretCatalog()

	results, err := r.Reconcile(context.Background(), catalog, defaultValues())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	actions := actionsByName(results)
	if actions["alpha"] != ActionCreated || actions["beta"] != ActionCreated {
		t.Fatalf("expected both created, got %v", actions)
	}

	secret, err := clientset.CoreV1().Secrets(testNamespace).Get(context.Background(), "beta", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("fetch beta: %v", err)
	}
	if string(secret.Data["user"]) != "svc-beta" {
		t.Fatalf("unexpected beta payload keys: %v", keysOf(secret.Data))
	}
	if secret.Labels[ManagedByLabel] != ManagedByValue {
		t.Fatalf("expected management label, got %v", secret.Labels)
	}

	// Same inputs again: everything must be a no-op.
	results, err = r.Reconcile(context.Background(), catalog, defaultValues())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	for _, res := range results {
		if res.Action != ActionUnchanged {
			t.Fatalf("expected unchanged on second run, got %s for %s", res.Action, res.Secret)
		}
	}
}

func TestReconcileUpdatesChangedValue(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	r := newTestReconciler(clientset, Options{})
	catalog := &schema.Catalog{Secrets: []schema.SecretSpec{
		{Name: "alpha", Keys: []schema.KeySpec{{Name: "token", SourceVar: "ALPHA_TOKEN"}}},
	}}

	if _, err := r.Reconcile(context.Background(), catalog, valuesFrom(map[string]string{"ALPHA_TOKEN": "v1"})); err != nil {
		t.Fatalf("first run: %v", err)
	}
	results, err := r.Reconcile(context.Background(), catalog, valuesFrom(map[string]string{"ALPHA_TOKEN": "v2"}))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if results[0].Action != ActionUpdated {
		t.Fatalf("expected updated, got %s", results[0].Action)
	}
	secret, err := clientset.CoreV1().Secrets(testNamespace).Get(context.Background(), "alpha", metav1.GetOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if string(secret.Data["token"]) != "v2" {
		t.Fatal("fetch after update should return the new value")
	}
}

func TestReconcileAdoptsUnlabeledSecret(t *testing.T) {
	clientset := fake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "alpha", Namespace: testNamespace},
		Type:       corev1.SecretTypeOpaque,
		Data:       map[string][]byte{"token": []byte("alpha-token-value")},
	})
	r := newTestReconciler(clientset, Options{})
	catalog := &schema.Catalog{Secrets: []schema.SecretSpec{
		{Name: "alpha", Keys: []schema.KeySpec{{Name: "token", SourceVar: "ALPHA_TOKEN"}}},
	}}
	results, err := r.Reconcile(context.Background(), catalog, defaultValues())
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Action != ActionUpdated {
		t.Fatalf("expected update to stamp management labels, got %s", results[0].Action)
	}
	secret, _ := clientset.CoreV1().Secrets(testNamespace).Get(context.Background(), "alpha", metav1.GetOptions{})
	if secret.Labels[ManagedByLabel] != ManagedByValue {
		t.Fatalf("expected management label after adoption, got %v", secret.Labels)
	}
}

func TestReconcileRetriesConflict(t *testing.T) {
	clientset := fake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "alpha", Namespace: testNamespace, Labels: ManagedLabels()},
		Type:       corev1.SecretTypeOpaque,
		Data:       map[string][]byte{"token": []byte("stale")},
	})
	conflicts := 0
	gr := k8sschema.GroupResource{Resource: "secrets"}
	clientset.PrependReactor("update", "secrets", func(action k8stesting.Action) (bool, runtime.Object, error) {
		if conflicts < 2 {
			conflicts++
			return true, nil, apierrors.NewConflict(gr, "alpha", fmt.Errorf("the object has been modified"))
		}
		return false, nil, nil
	})
	r := newTestReconciler(clientset, Options{})
	catalog := &schema.Catalog{Secrets: []schema.SecretSpec{
		{Name: "alpha", Keys: []schema.KeySpec{{Name: "token", SourceVar: "ALPHA_TOKEN"}}},
	}}
	results, err := r.Reconcile(context.Background(), catalog, defaultValues())
	if err != nil {
		t.Fatalf("conflicts should be retried: %v", err)
	}
	if results[0].Action != ActionUpdated {
		t.Fatalf("expected updated after retries, got %s (err %v)", results[0].Action, results[0].Err)
	}
	if conflicts != 2 {
		t.Fatalf("expected 2 injected conflicts consumed, got %d", conflicts)
	}
}

func TestReconcilePermissionErrorIsRunFatal(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	gr := k8sschema.GroupResource{Resource: "secrets"}
	clientset.PrependReactor("create", "secrets", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(gr, "alpha", fmt.Errorf("RBAC denied"))
	})
	r := newTestReconciler(clientset, Options{})
	_, err := r.Reconcile(context.Background(), twoSecretCatalog(), defaultValues())
	if err == nil {
		t.Fatal("expected run-fatal permission error")
	}
	permErr := &PermissionError{}
	if !errors.As(err, &permErr) {
		t.Fatalf("expected *PermissionError, got %T: %v", err, err)
	}
}

func TestReconcileIsolatesPerSecretFailures(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	clientset.PrependReactor("create", "secrets", func(action k8stesting.Action) (bool, runtime.Object, error) {
		create, ok := action.(k8stesting.CreateAction)
		if !ok {
			return false, nil, nil
		}
		secret, ok := create.GetObject().(*corev1.Secret)
		if ok && secret.Name == "alpha" {
			return true, nil, apierrors.NewInvalid(k8sschema.GroupKind{Kind: "Secret"}, "alpha", nil)
		}
		return false, nil, nil
	})
	r := newTestReconciler(clientset, Options{})
	results, err := r.Reconcile(context.Background(), twoSecretCatalog(), defaultValues())
	if err != nil {
		t.Fatalf("per-secret failure must not abort the run: %v", err)
	}
	actions := actionsByName(results)
	if actions["alpha"] != ActionFailed {
		t.Fatalf("expected alpha failed, got %v", actions)
	}
	if actions["beta"] != ActionCreated {
		t.Fatalf("beta must still be processed, got %v", actions)
	}
}

func TestReconcileErrorsNeverContainValues(t *testing.T) {
	const fixture = "s3cr3t-test-value-123"
	clientset := fake.NewSimpleClientset()
	clientset.PrependReactor("create", "secrets", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewInternalError(fmt.Errorf("boom"))
	})
	r := newTestReconciler(clientset, Options{})
	catalog := &schema.Catalog{Secrets: []schema.SecretSpec{
		{Name: "alpha", Keys: []schema.KeySpec{{Name: "token", SourceVar: "ALPHA_TOKEN"}}},
	}}
	results, err := r.Reconcile(context.Background(), catalog, valuesFrom(map[string]string{"ALPHA_TOKEN": fixture}))
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Action != ActionFailed || results[0].Err == nil {
		t.Fatalf("expected failure result, got %+v", results[0])
	}
	if strings.Contains(results[0].Err.Error(), fixture) {
		t.Fatalf("error leaked the secret value: %v", results[0].Err)
	}
	partial := &PartialFailureError{Failures: results}
	if strings.Contains(partial.Error(), fixture) {
		t.Fatalf("partial failure report leaked the secret value: %v", partial)
	}
}

func TestReconcileUnresolvedValueStaysPerSecret(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	r := newTestReconciler(clientset, Options{})
	values := defaultValues()
	delete(values, "ALPHA_TOKEN")
	results, err := r.Reconcile(context.Background(), twoSecretCatalog(), values)
	if err != nil {
		t.Fatalf("an unresolved value must not abort the run: %v", err)
	}
	actions := actionsByName(results)
	if actions["alpha"] != ActionFailed {
		t.Fatalf("expected alpha failed, got %v", actions)
	}
	if actions["beta"] != ActionCreated {
		t.Fatalf("beta must still be processed, got %v", actions)
	}
}

func TestReconcileDryRunMutatesNothing(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	r := newTestReconciler(clientset, Options{DryRun: true})
	results, err := r.Reconcile(context.Background(), twoSecretCatalog(), defaultValues())
	if err != nil {
		t.Fatal(err)
	}
	actions := actionsByName(results)
	if actions["alpha"] != ActionCreated || actions["beta"] != ActionCreated {
		t.Fatalf("dry run should report planned actions, got %v", actions)
	}
	list, err := clientset.CoreV1().Secrets(testNamespace).List(context.Background(), metav1.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 0 {
		t.Fatalf("dry run created %d secrets", len(list.Items))
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Result{
		{Action: ActionCreated}, {Action: ActionCreated},
		{Action: ActionUpdated}, {Action: ActionUnchanged},
		{Action: ActionSubmitted}, {Action: ActionFailed},
	})
	if s.Created != 2 || s.Updated != 1 || s.Unchanged != 1 || s.Submitted != 1 || s.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func keysOf(data map[string][]byte) []string {
	var out []string
	for k := range data {
		out = append(out, k)
	}
	return out
}
