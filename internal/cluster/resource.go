// Package cluster talks to the Kubernetes API on behalf of the operator:
// WorkFlow custom resources and the pods an external controller runs for them.
package cluster

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const workflowKind = "WorkFlow"

// Resource is the WorkFlow custom resource body.
type Resource struct {
	APIVersion string           `json:"apiVersion"`
	Kind       string           `json:"kind"`
	Metadata   ResourceMetadata `json:"metadata"`
	Spec       ResourceSpec     `json:"spec"`
}

type ResourceMetadata struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace"`
	Labels    map[string]string `json:"labels"`
	Secret    string            `json:"secret"`
}

// ResourceSpec carries the submitted workflow verbatim.
type ResourceSpec struct {
	Metadata json.RawMessage `json:"metadata"`
}

// BuildResource assembles the WorkFlow body for a job. Each body gets a fresh
// random secret.
func BuildResource(group, version, jobID, namespace string, workflow json.RawMessage) (*Resource, error) {
	secret, err := randomHex(16)
	if err != nil {
		return nil, fmt.Errorf("generate workflow secret: %w", err)
	}
	return &Resource{
		APIVersion: group + "/" + version,
		Kind:       workflowKind,
		Metadata: ResourceMetadata{
			Name:      jobID,
			Namespace: namespace,
			Labels:    map[string]string{"workflow": jobID},
			Secret:    secret,
		},
		Spec: ResourceSpec{Metadata: workflow},
	}, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
