package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
)

const defaultTrackedConfirmations uint64 = 1

// ProviderDependencies collects the collaborators of Provider.
type ProviderDependencies struct {
	Connections   *Connections
	Binder        governance.ContractBinder
	Signer        *KeySigner
	Publisher     governance.Publisher
	Network       governance.Network
	Confirmations uint64
}

// Provider is the operator's wallet provider. It emits the session events consumed by
// the reactor, supplies the base wallet record and watches submitted transactions.
type Provider struct {
	connections   *Connections
	binder        governance.ContractBinder
	signer        *KeySigner
	publisher     governance.Publisher
	confirmations uint64

	mutex     sync.RWMutex
	network   governance.Network
	connected bool

	lifetime context.Context
	cancel   context.CancelFunc
	tracking sync.WaitGroup
}

// NewProvider wires a Provider. The session starts disconnected.
func NewProvider(dependencies ProviderDependencies) (*Provider, error) {
	if dependencies.Connections == nil || dependencies.Binder == nil || dependencies.Signer == nil {
		return nil, fmt.Errorf("%w: provider requires connections, binder and signer", governance.ErrInvalidServiceConfig)
	}
	network, err := governance.ParseNetwork(string(dependencies.Network))
	if err != nil {
		return nil, err
	}
	confirmations := dependencies.Confirmations
	if confirmations == 0 {
		confirmations = defaultTrackedConfirmations
	}
	lifetime, cancel := context.WithCancel(context.Background())
	return &Provider{
		connections:   dependencies.Connections,
		binder:        dependencies.Binder,
		signer:        dependencies.Signer,
		publisher:     dependencies.Publisher,
		confirmations: confirmations,
		network:       network,
		lifetime:      lifetime,
		cancel:        cancel,
	}, nil
}

// Connect opens the session on the current network.
func (provider *Provider) Connect(ctx context.Context) error {
	network := provider.Network()
	if _, err := provider.connections.Backend(ctx, network); err != nil {
		return err
	}
	provider.mutex.Lock()
	provider.connected = true
	provider.mutex.Unlock()
	provider.publish(ctx, governance.Event{Kind: governance.EventConnectSuccess, Account: provider.signer.Account(), Network: network})
	return nil
}

// Disconnect logs the session out; the next aggregation yields no wallet.
func (provider *Provider) Disconnect(ctx context.Context) {
	provider.mutex.Lock()
	provider.connected = false
	network := provider.network
	provider.mutex.Unlock()
	provider.publish(ctx, governance.Event{Kind: governance.EventAccountChange, Network: network})
}

// SwitchNetwork moves the session to another network.
func (provider *Provider) SwitchNetwork(ctx context.Context, raw string) (governance.Network, error) {
	network, err := governance.ParseNetwork(raw)
	if err != nil {
		return "", err
	}
	if _, err := provider.connections.Backend(ctx, network); err != nil {
		return "", err
	}
	provider.mutex.Lock()
	provider.network = network
	provider.mutex.Unlock()
	provider.publish(ctx, governance.Event{Kind: governance.EventNetworkChange, Account: provider.signer.Account(), Network: network})
	return network, nil
}

// Network returns the session network.
func (provider *Provider) Network() governance.Network {
	provider.mutex.RLock()
	defer provider.mutex.RUnlock()
	return provider.network
}

// CurrentAccount reports the connected account.
func (provider *Provider) CurrentAccount() (governance.Account, bool) {
	provider.mutex.RLock()
	defer provider.mutex.RUnlock()
	if !provider.connected {
		return governance.Account{}, false
	}
	return provider.signer.Account(), true
}

// CurrentWallet returns the base wallet record with the MANA balance, or nil when the
// session is logged out.
func (provider *Provider) CurrentWallet(ctx context.Context) (*governance.Wallet, error) {
	account, connected := provider.CurrentAccount()
	if !connected {
		return nil, nil
	}
	network := provider.Network()
	contracts, err := provider.binder.Contracts(ctx, network)
	if err != nil {
		return nil, err
	}
	if contracts.Mana == nil {
		return nil, fmt.Errorf("%w: mana contract not bound", governance.ErrContractsUnavailable)
	}
	balance, err := contracts.Mana.BalanceOf(ctx, account.Address())
	if err != nil {
		return nil, err
	}
	return &governance.Wallet{Address: account, Network: network, Mana: governance.FromWei(balance)}, nil
}

// PersonalSign delegates to the key signer.
func (provider *Provider) PersonalSign(ctx context.Context, account governance.Account, message string) (string, error) {
	return provider.signer.PersonalSign(ctx, account, message)
}

// Track waits for the transaction in the background and emits transaction-confirmed.
func (provider *Provider) Track(_ context.Context, transaction governance.Transaction) {
	if transaction == nil {
		return
	}
	provider.tracking.Add(1)
	go func() {
		defer provider.tracking.Done()
		receipt, err := transaction.Wait(provider.lifetime, provider.confirmations)
		if err != nil || !receipt.Succeeded {
			return
		}
		provider.publish(provider.lifetime, governance.Event{
			Kind:    governance.EventTransactionConfirmed,
			Account: provider.signer.Account(),
			Network: provider.Network(),
			TxHash:  transaction.Hash(),
		})
	}()
}

// Close stops tracking and waits for the watchers to return.
func (provider *Provider) Close() {
	provider.cancel()
	provider.tracking.Wait()
}

func (provider *Provider) publish(ctx context.Context, event governance.Event) {
	if provider.publisher != nil {
		provider.publisher.Publish(ctx, event)
	}
}
