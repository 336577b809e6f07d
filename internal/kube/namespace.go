// File: internal/kube/namespace.go
// Brief: Idempotent namespace creation preceding reconciliation.

package kube

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// EnsureResult reports how EnsureNamespace satisfied its contract.
type EnsureResult string

const (
	NamespaceCreated       EnsureResult = "created"
	NamespaceAlreadyExists EnsureResult = "exists"
)

// EnsureNamespace guarantees the namespace exists before reconciliation
// starts. Two concurrent callers may race on the create; an AlreadyExists
// response from the API server is success, not an error.
func EnsureNamespace(ctx context.Context, client *Client, namespace string) (EnsureResult, error) {
	if namespace == "" {
		return "", fmt.Errorf("namespace is required")
	}
	_, err := client.Clientset.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
	if err == nil {
		return NamespaceAlreadyExists, nil
	}
	if !apierrors.IsNotFound(err) {
		return "", fmt.Errorf("get namespace %q: %w", namespace, err)
	}
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: namespace}}
	_, err = client.Clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return NamespaceAlreadyExists, nil
	}
	if err != nil {
		return "", fmt.Errorf("create namespace %q: %w", namespace, err)
	}
	return NamespaceCreated, nil
}
