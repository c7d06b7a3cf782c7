package governance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// WalletSource yields the base wallet record (address, network, MANA balance) of the
// connected session, or nil when logged out.
type WalletSource interface {
	CurrentWallet(ctx context.Context) (*Wallet, error)
}

// SessionDependencies collects the collaborators of SessionReactor.
type SessionDependencies struct {
	Source        WalletSource
	Aggregator    *BalanceAggregator
	Wallets       *WalletStore
	Publisher     Publisher
	Organizations OrganizationConnector
	Directory     map[Network]OrganizationEndpoint
	Network       Network
}

// SessionReactor turns wallet-provider events into balance aggregations and
// organization connections. Overlapping requests are collapsed: every request takes a
// new epoch and only the latest epoch's result is committed.
type SessionReactor struct {
	source        WalletSource
	aggregator    *BalanceAggregator
	wallets       *WalletStore
	publisher     Publisher
	organizations OrganizationConnector
	directory     map[Network]OrganizationEndpoint

	balanceEpoch      atomic.Uint64
	organizationEpoch atomic.Uint64
	network           atomic.Value
	commitMutex       sync.Mutex
	inflight          sync.WaitGroup
	fatal             chan error
	options           serviceOptions
}

// NewSessionReactor wires a SessionReactor.
func NewSessionReactor(dependencies SessionDependencies, options ...ServiceOption) (*SessionReactor, error) {
	if dependencies.Source == nil {
		return nil, fmt.Errorf("%w: wallet source is nil", ErrInvalidServiceConfig)
	}
	if dependencies.Aggregator == nil {
		return nil, fmt.Errorf("%w: aggregator is nil", ErrInvalidServiceConfig)
	}
	if dependencies.Wallets == nil {
		return nil, fmt.Errorf("%w: wallet store is nil", ErrInvalidServiceConfig)
	}
	network, err := ParseNetwork(string(dependencies.Network))
	if err != nil {
		return nil, err
	}
	reactor := &SessionReactor{
		source:        dependencies.Source,
		aggregator:    dependencies.Aggregator,
		wallets:       dependencies.Wallets,
		publisher:     dependencies.Publisher,
		organizations: dependencies.Organizations,
		directory:     dependencies.Directory,
		fatal:         make(chan error, 1),
		options:       collectOptions(options),
	}
	reactor.network.Store(network)
	return reactor, nil
}

// Run consumes events until the channel closes or ctx ends. An unknown network is
// fatal and stops the reactor with ErrUnknownNetwork.
func (reactor *SessionReactor) Run(ctx context.Context, events <-chan Event) error {
	defer reactor.inflight.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-reactor.fatal:
			return err
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := reactor.Handle(ctx, event); err != nil {
				return err
			}
		}
	}
}

// Handle reacts to a single event.
func (reactor *SessionReactor) Handle(ctx context.Context, event Event) error {
	switch event.Kind {
	case EventConnectSuccess, EventTransactionConfirmed:
		if err := reactor.observeNetwork(event.Network); err != nil {
			return err
		}
		reactor.requestBalance(ctx)
	case EventAccountChange, EventNetworkChange:
		if err := reactor.observeNetwork(event.Network); err != nil {
			return err
		}
		reactor.wallets.Clear()
		reactor.requestBalance(ctx)
		reactor.requestOrganization(ctx)
	case EventOrganizationLoadRequested, EventStorageLoaded:
		reactor.requestOrganization(ctx)
	}
	return nil
}

// Wait blocks until every in-flight request finished.
func (reactor *SessionReactor) Wait() {
	reactor.inflight.Wait()
}

// BalanceEpoch returns the epoch of the latest balance request.
func (reactor *SessionReactor) BalanceEpoch() uint64 {
	return reactor.balanceEpoch.Load()
}

// Network returns the network the reactor is bound to.
func (reactor *SessionReactor) Network() Network {
	return reactor.network.Load().(Network)
}

func (reactor *SessionReactor) observeNetwork(raw Network) error {
	if raw == "" {
		return nil
	}
	network, err := ParseNetwork(string(raw))
	if err != nil {
		return err
	}
	reactor.network.Store(network)
	return nil
}

func (reactor *SessionReactor) requestBalance(ctx context.Context) {
	epoch := reactor.balanceEpoch.Add(1)
	reactor.inflight.Add(1)
	go func() {
		defer reactor.inflight.Done()
		reactor.aggregate(ctx, epoch)
	}()
}

func (reactor *SessionReactor) aggregate(ctx context.Context, epoch uint64) {
	base, err := reactor.source.CurrentWallet(ctx)
	if err == nil && base != nil {
		if _, networkErr := ParseNetwork(string(base.Network)); networkErr != nil {
			reactor.raiseFatal(networkErr)
			err = networkErr
		}
	}
	var extended *Wallet
	if err == nil {
		extended, err = reactor.aggregator.Aggregate(ctx, base)
	}

	reactor.commitMutex.Lock()
	defer reactor.commitMutex.Unlock()
	if epoch != reactor.balanceEpoch.Load() {
		return
	}
	if err != nil {
		var balanceError *BalanceError
		if !errors.As(err, &balanceError) {
			err = &BalanceError{Message: err.Error(), Err: err}
		}
		publish(ctx, reactor.publisher, Event{Kind: EventBalanceFailed, Error: ErrorMessage(err)})
		return
	}
	reactor.wallets.Replace(extended)
	event := Event{Kind: EventBalanceReady, Wallet: extended}
	if extended != nil {
		event.Account = extended.Address
		event.Network = extended.Network
	}
	publish(ctx, reactor.publisher, event)
}

func (reactor *SessionReactor) requestOrganization(ctx context.Context) {
	if reactor.organizations == nil {
		return
	}
	epoch := reactor.organizationEpoch.Add(1)
	network := reactor.Network()
	reactor.inflight.Add(1)
	go func() {
		defer reactor.inflight.Done()
		reactor.connectOrganization(ctx, epoch, network)
	}()
}

func (reactor *SessionReactor) connectOrganization(ctx context.Context, epoch uint64, network Network) {
	var (
		organization Organization
		err          error
	)
	endpoint, ok := reactor.directory[network]
	if !ok {
		err = fmt.Errorf("%w: no organization configured for %s", ErrOrganizationConnection, network)
	} else {
		organization, err = reactor.organizations.Connect(ctx, endpoint.Location, endpoint.Connector, network)
	}
	if epoch != reactor.organizationEpoch.Load() {
		return
	}
	reactor.options.logOperation(ctx, OperationLog{
		Operation: operationConnectOrg,
		Network:   network,
		Detail:    endpoint.Location,
		Error:     err,
	})
	if err != nil {
		publish(ctx, reactor.publisher, Event{Kind: EventOrganizationFailed, Network: network, Error: ErrorMessage(err)})
		return
	}
	publish(ctx, reactor.publisher, Event{Kind: EventOrganizationLoaded, Network: organization.Network})
	publish(ctx, reactor.publisher, Event{Kind: EventAppsLoadRequested, Network: organization.Network})
}

func (reactor *SessionReactor) raiseFatal(err error) {
	select {
	case reactor.fatal <- err:
	default:
	}
}
