package provision

import (
	"context"
	"fmt"
	"sync"

	agonesclientset "agones.dev/agones/pkg/client/clientset/versioned"
	"github.com/rs/zerolog/log"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// allocationIDLabel is set on the GameServer by the backend via the
// Agones SDK when it registers its match.
const allocationIDLabel = "agones.dev/sdk-allocation-id"

// AgonesProvisioner reclaims allocations by deleting the Agones
// GameServer that carries the allocation id label.
type AgonesProvisioner struct {
	targetNamespace string

	mu     sync.Mutex
	agones agonesclientset.Interface
}

func NewAgonesProvisioner(ns string) *AgonesProvisioner {
	return &AgonesProvisioner{targetNamespace: ns}
}

func (p *AgonesProvisioner) clientset() (agonesclientset.Interface, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.agones != nil {
		return p.agones, nil
	}
	cli, err := newAgonesClient()
	if err != nil {
		log.Error().Err(err).Msg("provision: failed to initialize Agones client")
		return nil, err
	}
	p.agones = cli
	log.Info().Msg("provision: Agones client initialized")
	return cli, nil
}

func (p *AgonesProvisioner) DeleteAllocation(ctx context.Context, allocationID string) error {
	cli, err := p.clientset()
	if err != nil {
		return err
	}

	ns := p.targetNamespace
	if ns == "" {
		ns = "default"
	}

	selector := fmt.Sprintf("%s=%s", allocationIDLabel, allocationID)
	list, err := cli.AgonesV1().GameServers(ns).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		log.Error().Err(err).Str("namespace", ns).Str("allocationId", allocationID).Msg("provision: GameServer list failed")
		return err
	}
	if len(list.Items) == 0 {
		return fmt.Errorf("no GameServer found for allocation %q in namespace %q", allocationID, ns)
	}

	for _, gs := range list.Items {
		if err := cli.AgonesV1().GameServers(ns).Delete(ctx, gs.Name, metav1.DeleteOptions{}); err != nil {
			log.Error().Err(err).Str("namespace", ns).Str("gameServerName", gs.Name).Str("allocationId", allocationID).Msg("provision: GameServer delete failed")
			return err
		}
		log.Info().Str("namespace", ns).Str("gameServerName", gs.Name).Str("allocationId", allocationID).Msg("provision: deleted GameServer")
	}
	return nil
}

// newAgonesClient returns an Agones typed clientset using in-cluster config or local kubeconfig.
func newAgonesClient() (agonesclientset.Interface, error) {
	// Try in-cluster config first
	if cfg, err := rest.InClusterConfig(); err == nil {
		return agonesclientset.NewForConfig(cfg)
	}
	// Fallback to local kubeconfig
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})
	cfg, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, err
	}
	return agonesclientset.NewForConfig(cfg)
}
