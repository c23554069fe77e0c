package kubeconfig

import (
	"context"
	"fmt"
	"sort"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"
)

// Servers returns the server of every cluster in the kubeconfig file, sorted
func Servers(path string) ([]string, error) {
	cfg, err := clientcmd.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	servers := make([]string, 0, len(cfg.Clusters))
	for _, cluster := range cfg.Clusters {
		servers = append(servers, cluster.Server)
	}
	sort.Strings(servers)
	return servers, nil
}

// Verify loads the kubeconfig file at path and checks that the api server of
// its current context answers /livez
func Verify(ctx context.Context, path string, timeout time.Duration) error {
	restCfg, err := clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return fmt.Errorf("could not load kubeconfig %s, %w", path, err)
	}
	restCfg.Timeout = timeout

	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return err
	}

	if !CheckClusterIsHealthy(ctx, client) {
		return fmt.Errorf("cluster at %s is not healthy", restCfg.Host)
	}
	return nil
}

func CheckClusterIsHealthy(ctx context.Context, client kubernetes.Interface) bool {
	path := "/livez"

	content, err := client.Discovery().RESTClient().Get().AbsPath(path).DoRaw(ctx)
	if err != nil {
		klog.Errorf("check livez err: %v", err)
		return false
	}

	res := string(content)
	klog.Infof("check livez content: %v", res)
	return res == "ok"
}
