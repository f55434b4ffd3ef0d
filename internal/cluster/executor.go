package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
)

var (
	ErrNotFound    = errors.New("workflow not found")
	ErrPodNotFound = errors.New("pod not found")
)

// Executor is the narrow view of the cluster the rest of the service uses.
type Executor interface {
	CreateWorkflow(ctx context.Context, res *Resource) error
	GetWorkflow(ctx context.Context, namespace, name string) (map[string]any, error)
	ListWorkflows(ctx context.Context, namespace string) ([]string, error)
	DeleteWorkflow(ctx context.Context, namespace, name string) error
	PodLogs(ctx context.Context, namespace, selector string) (io.ReadCloser, error)
}

// KubeExecutor implements Executor with client-go.
type KubeExecutor struct {
	dynamic dynamic.Interface
	core    kubernetes.Interface
	gvr     schema.GroupVersionResource
}

// NewKubeExecutor creates a KubeExecutor over already constructed clients.
func NewKubeExecutor(dyn dynamic.Interface, core kubernetes.Interface, group, version, plural string) *KubeExecutor {
	return &KubeExecutor{
		dynamic: dyn,
		core:    core,
		gvr:     schema.GroupVersionResource{Group: group, Version: version, Resource: plural},
	}
}

func (k *KubeExecutor) CreateWorkflow(ctx context.Context, res *Resource) error {
	obj, err := toUnstructured(res)
	if err != nil {
		return err
	}
	_, err = k.dynamic.Resource(k.gvr).Namespace(res.Metadata.Namespace).Create(ctx, obj, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("create workflow %s/%s: %w", res.Metadata.Namespace, res.Metadata.Name, err)
	}
	return nil
}

func (k *KubeExecutor) GetWorkflow(ctx context.Context, namespace, name string) (map[string]any, error) {
	obj, err := k.dynamic.Resource(k.gvr).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow %s/%s: %w", namespace, name, err)
	}
	return obj.Object, nil
}

func (k *KubeExecutor) ListWorkflows(ctx context.Context, namespace string) ([]string, error) {
	list, err := k.dynamic.Resource(k.gvr).Namespace(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list workflows in %s: %w", namespace, err)
	}
	names := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		names = append(names, item.GetName())
	}
	return names, nil
}

func (k *KubeExecutor) DeleteWorkflow(ctx context.Context, namespace, name string) error {
	policy := metav1.DeletePropagationBackground
	grace := int64(0)
	err := k.dynamic.Resource(k.gvr).Namespace(namespace).Delete(ctx, name, metav1.DeleteOptions{
		GracePeriodSeconds: &grace,
		PropagationPolicy:  &policy,
	})
	if apierrors.IsNotFound(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete workflow %s/%s: %w", namespace, name, err)
	}
	return nil
}

// PodLogs streams the logs of the first pod matching selector. The caller
// must close the returned reader.
func (k *KubeExecutor) PodLogs(ctx context.Context, namespace, selector string) (io.ReadCloser, error) {
	pods, err := k.core.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("list pods %q in %s: %w", selector, namespace, err)
	}
	if len(pods.Items) == 0 {
		return nil, ErrPodNotFound
	}
	rc, err := k.core.CoreV1().Pods(namespace).GetLogs(pods.Items[0].Name, &corev1.PodLogOptions{}).Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("stream logs for pod %s: %w", pods.Items[0].Name, err)
	}
	return rc, nil
}

func toUnstructured(res *Resource) (*unstructured.Unstructured, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode workflow resource: %w", err)
	}
	obj := map[string]any{}
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, fmt.Errorf("decode workflow resource: %w", err)
	}
	return &unstructured.Unstructured{Object: obj}, nil
}
