package cluster_test

import (
	"context"
	"encoding/json"
	"io"
	"regexp"
	"testing"

	"github.com/kiranshivaraju/operator-service/internal/cluster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8sfake "k8s.io/client-go/kubernetes/fake"
)

const (
	group   = "oceanprotocol.com"
	version = "v1alpha"
	plural  = "workflows"
)

func newExecutor(t *testing.T, pods ...runtime.Object) *cluster.KubeExecutor {
	t.Helper()
	gvr := schema.GroupVersionResource{Group: group, Version: version, Resource: plural}
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(),
		map[schema.GroupVersionResource]string{gvr: "WorkFlowList"})
	core := k8sfake.NewSimpleClientset(pods...)
	return cluster.NewKubeExecutor(dyn, core, group, version, plural)
}

func TestBuildResource(t *testing.T) {
	wf := json.RawMessage(`{"stages":[{"index":0}]}`)
	res, err := cluster.BuildResource(group, version, "abc123", "ocean-compute", wf)
	require.NoError(t, err)

	assert.Equal(t, "oceanprotocol.com/v1alpha", res.APIVersion)
	assert.Equal(t, "WorkFlow", res.Kind)
	assert.Equal(t, "abc123", res.Metadata.Name)
	assert.Equal(t, "ocean-compute", res.Metadata.Namespace)
	assert.Equal(t, map[string]string{"workflow": "abc123"}, res.Metadata.Labels)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), res.Metadata.Secret)
	assert.JSONEq(t, string(wf), string(res.Spec.Metadata))

	other, err := cluster.BuildResource(group, version, "abc123", "ocean-compute", wf)
	require.NoError(t, err)
	assert.NotEqual(t, res.Metadata.Secret, other.Metadata.Secret)
}

func TestKubeExecutor_WorkflowLifecycle(t *testing.T) {
	exec := newExecutor(t)
	ctx := context.Background()

	res, err := cluster.BuildResource(group, version, "job1", "ocean-compute", json.RawMessage(`{"stages":[]}`))
	require.NoError(t, err)
	require.NoError(t, exec.CreateWorkflow(ctx, res))

	obj, err := exec.GetWorkflow(ctx, "ocean-compute", "job1")
	require.NoError(t, err)
	assert.Equal(t, "WorkFlow", obj["kind"])

	names, err := exec.ListWorkflows(ctx, "ocean-compute")
	require.NoError(t, err)
	assert.Equal(t, []string{"job1"}, names)

	require.NoError(t, exec.DeleteWorkflow(ctx, "ocean-compute", "job1"))

	_, err = exec.GetWorkflow(ctx, "ocean-compute", "job1")
	assert.ErrorIs(t, err, cluster.ErrNotFound)
	assert.ErrorIs(t, exec.DeleteWorkflow(ctx, "ocean-compute", "job1"), cluster.ErrNotFound)
}

func TestKubeExecutor_PodLogs(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "job1-algorithm",
			Namespace: "ocean-compute",
			Labels:    map[string]string{"workflow": "job1", "component": "algorithm"},
		},
	}
	exec := newExecutor(t, pod)
	ctx := context.Background()

	rc, err := exec.PodLogs(ctx, "ocean-compute", "workflow=job1,component=algorithm")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.NotEmpty(t, body)

	_, err = exec.PodLogs(ctx, "ocean-compute", "workflow=job1,component=publish")
	assert.ErrorIs(t, err, cluster.ErrPodNotFound)
}
