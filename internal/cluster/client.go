package cluster

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// LoadRESTConfig resolves cluster credentials: in-cluster first, then the
// given kubeconfig path, then ~/.kube/config.
func LoadRESTConfig(kubeconfig string) (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}

	if kubeconfig != "" {
		cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("load kubeconfig from %s: %w", kubeconfig, err)
		}
		return cfg, nil
	}

	home := homedir.HomeDir()
	if home == "" {
		return nil, fmt.Errorf("cannot determine home directory; set KUBECONFIG")
	}
	path := filepath.Join(home, ".kube", "config")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no in-cluster config and no kubeconfig at %s: %w", path, err)
	}
	cfg, err := clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig from %s: %w", path, err)
	}
	return cfg, nil
}

// NewFromConfig builds a KubeExecutor from a REST config.
func NewFromConfig(cfg *rest.Config, group, version, plural string) (*KubeExecutor, error) {
	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create dynamic client: %w", err)
	}
	core, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}
	return NewKubeExecutor(dyn, core, group, version, plural), nil
}
