package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the JSON-RPC surface the facade needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// DialFunc opens a Backend for an RPC endpoint.
type DialFunc func(ctx context.Context, endpoint string) (Backend, error)

// DialEthereum dials an endpoint with ethclient.
func DialEthereum(ctx context.Context, endpoint string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Connections keeps one process-wide backend per network, dialed on first use.
type Connections struct {
	endpoints map[governance.Network]string
	dial      DialFunc
	mutex     sync.Mutex
	backends  map[governance.Network]Backend
}

// NewConnections validates the endpoint map.
func NewConnections(endpoints map[string]string, dial DialFunc) (*Connections, error) {
	if dial == nil {
		dial = DialEthereum
	}
	parsed := make(map[governance.Network]string, len(endpoints))
	for rawNetwork, endpoint := range endpoints {
		network, err := governance.ParseNetwork(rawNetwork)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(endpoint) == "" {
			return nil, fmt.Errorf("%w: empty rpc endpoint for %s", governance.ErrInvalidServiceConfig, network)
		}
		parsed[network] = strings.TrimSpace(endpoint)
	}
	return &Connections{endpoints: parsed, dial: dial, backends: map[governance.Network]Backend{}}, nil
}

// Backend returns the backend of network, dialing it when needed. The remote chain id
// must match the network.
func (connections *Connections) Backend(ctx context.Context, network governance.Network) (Backend, error) {
	connections.mutex.Lock()
	defer connections.mutex.Unlock()
	if backend, ok := connections.backends[network]; ok {
		return backend, nil
	}
	endpoint, ok := connections.endpoints[network]
	if !ok {
		return nil, fmt.Errorf("%w: no rpc endpoint for %q", governance.ErrUnknownNetwork, network)
	}
	backend, err := connections.dial(ctx, endpoint)
	if err != nil {
		return nil, classifyError("dial", err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, classifyError("chain_id", err)
	}
	remote, err := governance.NetworkForChainID(chainID)
	if err != nil {
		return nil, err
	}
	if remote != network {
		return nil, fmt.Errorf("%w: endpoint for %s serves %s", governance.ErrUnknownNetwork, network, remote)
	}
	connections.backends[network] = backend
	return backend, nil
}

// Close releases every dialed backend that supports closing.
func (connections *Connections) Close() {
	connections.mutex.Lock()
	defer connections.mutex.Unlock()
	for network, backend := range connections.backends {
		if closer, ok := backend.(interface{ Close() }); ok {
			closer.Close()
		}
		delete(connections.backends, network)
	}
}
