// File: internal/externalbackend/adapter.go
// Brief: Applies secret-store reference resources instead of literal values.

// Package externalbackend is the alternate mutation path: instead of writing
// literal Secret payloads, it applies a store-connection resource and one
// reference resource per secret. An external synchronization controller
// materializes the real Secret asynchronously, so the adapter's result is
// Submitted, never Created or Updated.
package externalbackend

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/example/secretctl/internal/kube"
	"github.com/example/secretctl/internal/reconcile"
	catalogschema "github.com/example/secretctl/internal/schema"
)

const (
	apiGroup   = "external-secrets.io"
	apiVersion = "v1beta1"

	defaultRefreshInterval = "1h"
)

var (
	secretStoreGVR        = schema.GroupVersionResource{Group: apiGroup, Version: apiVersion, Resource: "secretstores"}
	clusterSecretStoreGVR = schema.GroupVersionResource{Group: apiGroup, Version: apiVersion, Resource: "clustersecretstores"}
	externalSecretGVR     = schema.GroupVersionResource{Group: apiGroup, Version: apiVersion, Resource: "externalsecrets"}
)

// ExternalSecretGVR exposes the reference-resource GVR for the verifier.
func ExternalSecretGVR() schema.GroupVersionResource { return externalSecretGVR }

// Adapter applies store-connection and per-secret reference resources.
type Adapter struct {
	client    *kube.Client
	namespace string
	cfg       *catalogschema.ExternalBackendConfig
	dryRun    bool
	log       logr.Logger
}

// New builds an Adapter from the catalog's externalBackend block.
func New(client *kube.Client, namespace string, cfg *catalogschema.ExternalBackendConfig, dryRun bool, log logr.Logger) (*Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("catalog has no externalBackend configuration")
	}
	return &Adapter{client: client, namespace: namespace, cfg: cfg, dryRun: dryRun, log: log}, nil
}

// Validate checks that every key carries a remote reference before any
// resource is applied. Failures here are configuration errors.
func Validate(catalog *catalogschema.Catalog) error {
	if catalog.ExternalBackend == nil {
		return fmt.Errorf("catalog has no externalBackend configuration")
	}
	var missing []string
	for _, spec := range catalog.Secrets {
		for _, key := range spec.Keys {
			if key.RemotePath == "" {
				missing = append(missing, spec.Name+"/"+key.Name)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("external backend requires remotePath for every key; missing on: %v", missing)
	}
	return nil
}

// Apply submits the store-connection resource and one reference resource per
// secret. Results carry ActionSubmitted; materialization is asynchronous.
func (a *Adapter) Apply(ctx context.Context, catalog *catalogschema.Catalog) ([]reconcile.Result, error) {
	if err := a.applyStore(ctx); err != nil {
		if fatal := reconcile.ClassifyFatal(err); fatal != nil {
			return nil, fatal
		}
		return nil, fmt.Errorf("apply secret store %q: %w", a.cfg.StoreName, err)
	}

	results := make([]reconcile.Result, 0, len(catalog.Secrets))
	for _, spec := range catalog.Secrets {
		if err := a.applyExternalSecret(ctx, spec); err != nil {
			if fatal := reconcile.ClassifyFatal(err); fatal != nil {
				return nil, fatal
			}
			results = append(results, reconcile.Result{
				Secret: spec.Name,
				Action: reconcile.ActionFailed,
				Err:    fmt.Errorf("apply reference for secret %q: %w", spec.Name, err),
			})
			continue
		}
		results = append(results, reconcile.Result{Secret: spec.Name, Action: reconcile.ActionSubmitted})
	}
	return results, nil
}

func (a *Adapter) applyStore(ctx context.Context) error {
	kind := "SecretStore"
	gvr := secretStoreGVR
	if a.cfg.ClusterScoped {
		kind = "ClusterSecretStore"
		gvr = clusterSecretStoreGVR
	}
	store := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": apiGroup + "/" + apiVersion,
		"kind":       kind,
		"metadata": map[string]interface{}{
			"name":   a.cfg.StoreName,
			"labels": labelMap(),
		},
		"spec": map[string]interface{}{
			"provider": a.cfg.Provider,
		},
	}}
	if !a.cfg.ClusterScoped {
		store.SetNamespace(a.namespace)
	}
	return a.apply(ctx, gvr, a.storeNamespace(), store)
}

func (a *Adapter) applyExternalSecret(ctx context.Context, spec catalogschema.SecretSpec) error {
	refreshInterval := a.cfg.RefreshInterval
	if refreshInterval == "" {
		refreshInterval = defaultRefreshInterval
	}
	storeKind := "SecretStore"
	if a.cfg.ClusterScoped {
		storeKind = "ClusterSecretStore"
	}
	data := make([]interface{}, 0, len(spec.Keys))
	for _, key := range spec.Keys {
		remoteRef := map[string]interface{}{"key": key.RemotePath}
		if key.RemoteProperty != "" {
			remoteRef["property"] = key.RemoteProperty
		}
		data = append(data, map[string]interface{}{
			"secretKey": key.Name,
			"remoteRef": remoteRef,
		})
	}
	es := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": apiGroup + "/" + apiVersion,
		"kind":       "ExternalSecret",
		"metadata": map[string]interface{}{
			"name":      spec.Name,
			"namespace": a.namespace,
			"labels":    labelMap(),
		},
		"spec": map[string]interface{}{
			"refreshInterval": refreshInterval,
			"secretStoreRef": map[string]interface{}{
				"name": a.cfg.StoreName,
				"kind": storeKind,
			},
			"target": map[string]interface{}{
				"name":           spec.Name,
				"creationPolicy": "Owner",
			},
			"data": data,
		},
	}}
	return a.apply(ctx, externalSecretGVR, a.namespace, es)
}

// apply is create-or-replace with the observed resourceVersion carried into
// the update, same optimistic-concurrency contract as the literal path.
func (a *Adapter) apply(ctx context.Context, gvr schema.GroupVersionResource, namespace string, desired *unstructured.Unstructured) error {
	iface := a.client.Dynamic.Resource(gvr)
	var client interface {
		Get(ctx context.Context, name string, options metav1.GetOptions, subresources ...string) (*unstructured.Unstructured, error)
		Create(ctx context.Context, obj *unstructured.Unstructured, options metav1.CreateOptions, subresources ...string) (*unstructured.Unstructured, error)
		Update(ctx context.Context, obj *unstructured.Unstructured, options metav1.UpdateOptions, subresources ...string) (*unstructured.Unstructured, error)
	}
	if namespace != "" {
		client = iface.Namespace(namespace)
	} else {
		client = iface
	}

	existing, err := client.Get(ctx, desired.GetName(), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if a.dryRun {
			return nil
		}
		_, err := client.Create(ctx, desired, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}
	if a.dryRun {
		return nil
	}
	desired.SetResourceVersion(existing.GetResourceVersion())
	_, err = client.Update(ctx, desired, metav1.UpdateOptions{})
	return err
}

func (a *Adapter) storeNamespace() string {
	if a.cfg.ClusterScoped {
		return ""
	}
	return a.namespace
}

func labelMap() map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range reconcile.ManagedLabels() {
		out[k] = v
	}
	return out
}
