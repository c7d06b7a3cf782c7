package governance

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"
)

type gatedSource struct {
	mutex   sync.Mutex
	current *Wallet
	gates   map[string]chan struct{}
	entered chan string
}

func newGatedSource(wallet *Wallet) *gatedSource {
	return &gatedSource{current: wallet, gates: map[string]chan struct{}{}, entered: make(chan string, 8)}
}

func (source *gatedSource) CurrentWallet(context.Context) (*Wallet, error) {
	source.mutex.Lock()
	var wallet *Wallet
	if source.current != nil {
		copied := *source.current
		wallet = &copied
	}
	var gate chan struct{}
	if wallet != nil {
		gate = source.gates[wallet.Address.String()]
	}
	source.mutex.Unlock()
	if wallet != nil {
		source.entered <- wallet.Address.String()
	}
	if gate != nil {
		<-gate
	}
	return wallet, nil
}

func (source *gatedSource) set(wallet *Wallet) {
	source.mutex.Lock()
	defer source.mutex.Unlock()
	source.current = wallet
}

type stubOrganizations struct {
	mutex sync.Mutex
	calls []string
	err   error
}

func (organizations *stubOrganizations) Connect(_ context.Context, location string, connector string, network Network) (Organization, error) {
	organizations.mutex.Lock()
	defer organizations.mutex.Unlock()
	organizations.calls = append(organizations.calls, location+"|"+connector+"|"+network.String())
	if organizations.err != nil {
		return Organization{}, organizations.err
	}
	return Organization{Location: location, Connector: connector, Network: network}, nil
}

type sessionFixture struct {
	chain         *stubChain
	source        *gatedSource
	wallets       *WalletStore
	publisher     *recordingPublisher
	organizations *stubOrganizations
	reactor       *SessionReactor
}

func newSessionFixture(test *testing.T, wallet *Wallet) *sessionFixture {
	test.Helper()
	fixture := &sessionFixture{
		chain:         newStubChain(),
		source:        newGatedSource(wallet),
		wallets:       NewWalletStore(),
		publisher:     &recordingPublisher{},
		organizations: &stubOrganizations{},
	}
	fixture.chain.miniMe.balance = tokens(7)
	aggregator := mustAggregator(test, &stubBinder{contracts: fixture.chain.contracts()})
	reactor, err := NewSessionReactor(SessionDependencies{
		Source:        fixture.source,
		Aggregator:    aggregator,
		Wallets:       fixture.wallets,
		Publisher:     fixture.publisher,
		Organizations: fixture.organizations,
		Directory: map[Network]OrganizationEndpoint{
			NetworkMainnet: {Location: "governance.aragonid.eth", Connector: "thegraph"},
		},
		Network: NetworkMainnet,
	})
	if err != nil {
		test.Fatalf("reactor init: %v", err)
	}
	fixture.reactor = reactor
	return fixture
}

func countKind(kinds []EventKind, kind EventKind) int {
	count := 0
	for _, candidate := range kinds {
		if candidate == kind {
			count++
		}
	}
	return count
}

func TestSessionReactorDiscardsStaleAggregation(test *testing.T) {
	test.Parallel()
	accountA := mustAccount(test, testAddressA)
	accountB := mustAccount(test, testAddressB)
	fixture := newSessionFixture(test, &Wallet{Address: accountA, Network: NetworkMainnet})
	gateA := make(chan struct{})
	fixture.source.gates[accountA.String()] = gateA
	ctx := context.Background()

	if err := fixture.reactor.Handle(ctx, Event{Kind: EventConnectSuccess, Network: NetworkMainnet}); err != nil {
		test.Fatalf("connect: %v", err)
	}
	if entered := <-fixture.source.entered; entered != accountA.String() {
		test.Fatalf("expected aggregation for A, got %s", entered)
	}

	fixture.source.set(&Wallet{Address: accountB, Network: NetworkMainnet})
	if err := fixture.reactor.Handle(ctx, Event{Kind: EventAccountChange, Account: accountB, Network: NetworkMainnet}); err != nil {
		test.Fatalf("account change: %v", err)
	}
	if entered := <-fixture.source.entered; entered != accountB.String() {
		test.Fatalf("expected aggregation for B, got %s", entered)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if stored := fixture.wallets.Get(); stored != nil && stored.Address == accountB {
			break
		}
		if time.Now().After(deadline) {
			test.Fatalf("B's aggregation never committed")
		}
		time.Sleep(time.Millisecond)
	}

	close(gateA)
	fixture.reactor.Wait()

	stored := fixture.wallets.Get()
	if stored == nil || stored.Address != accountB {
		test.Fatalf("expected B's wallet to survive, got %+v", stored)
	}
	if stored.ManaVotingPower != 7 {
		test.Fatalf("expected aggregated voting power, got %+v", stored)
	}
	if ready := countKind(fixture.publisher.kinds(), EventBalanceReady); ready != 1 {
		test.Fatalf("expected exactly one balance-ready event, got %d", ready)
	}
	if fixture.reactor.BalanceEpoch() != 2 {
		test.Fatalf("expected epoch 2, got %d", fixture.reactor.BalanceEpoch())
	}
}

func TestSessionReactorReaggregatesOnConfirmation(test *testing.T) {
	test.Parallel()
	fixture := newSessionFixture(test, &Wallet{Address: mustAccount(test, testAddressA), Network: NetworkMainnet})
	ctx := context.Background()

	if err := fixture.reactor.Handle(ctx, Event{Kind: EventConnectSuccess}); err != nil {
		test.Fatalf("connect: %v", err)
	}
	fixture.reactor.Wait()
	fixture.chain.land.balance = big.NewInt(3)
	fixture.chain.land.registered = true
	if err := fixture.reactor.Handle(ctx, Event{Kind: EventTransactionConfirmed, TxHash: "0xregister-land"}); err != nil {
		test.Fatalf("confirmed: %v", err)
	}
	fixture.reactor.Wait()

	stored := fixture.wallets.Get()
	if stored == nil || stored.LandVotingPower != 6000 {
		test.Fatalf("expected land voting power after confirmation, got %+v", stored)
	}
	if ready := countKind(fixture.publisher.kinds(), EventBalanceReady); ready != 2 {
		test.Fatalf("expected two balance-ready events, got %d", ready)
	}
}

func TestSessionReactorRefusesUnknownNetwork(test *testing.T) {
	test.Parallel()
	fixture := newSessionFixture(test, &Wallet{Address: mustAccount(test, testAddressA), Network: "kovan"})
	if err := fixture.reactor.Handle(context.Background(), Event{Kind: EventNetworkChange, Network: "kovan"}); !errors.Is(err, ErrUnknownNetwork) {
		test.Fatalf("expected ErrUnknownNetwork from event, got %v", err)
	}

	events := make(chan Event, 1)
	events <- Event{Kind: EventConnectSuccess}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fixture.reactor.Run(ctx, events); !errors.Is(err, ErrUnknownNetwork) {
		test.Fatalf("expected fatal ErrUnknownNetwork, got %v", err)
	}
	if _, ok := fixture.publisher.last(EventBalanceFailed); !ok {
		test.Fatalf("expected balance-failed event")
	}
}

func TestSessionReactorConnectsOrganization(test *testing.T) {
	test.Parallel()
	fixture := newSessionFixture(test, nil)
	if err := fixture.reactor.Handle(context.Background(), Event{Kind: EventStorageLoaded}); err != nil {
		test.Fatalf("storage loaded: %v", err)
	}
	fixture.reactor.Wait()

	kinds := fixture.publisher.kinds()
	if countKind(kinds, EventOrganizationLoaded) != 1 || countKind(kinds, EventAppsLoadRequested) != 1 {
		test.Fatalf("expected organization loaded and apps requested, got %v", kinds)
	}
	if len(fixture.organizations.calls) != 1 || fixture.organizations.calls[0] != "governance.aragonid.eth|thegraph|mainnet" {
		test.Fatalf("unexpected organization calls %v", fixture.organizations.calls)
	}
}

func TestSessionReactorReportsMissingOrganization(test *testing.T) {
	test.Parallel()
	fixture := newSessionFixture(test, nil)
	if err := fixture.reactor.Handle(context.Background(), Event{Kind: EventNetworkChange, Network: NetworkRopsten}); err != nil {
		test.Fatalf("network change: %v", err)
	}
	fixture.reactor.Wait()
	if fixture.reactor.Network() != NetworkRopsten {
		test.Fatalf("expected ropsten, got %s", fixture.reactor.Network())
	}
	event, ok := fixture.publisher.last(EventOrganizationFailed)
	if !ok || event.Network != NetworkRopsten || event.Error == "" {
		test.Fatalf("expected organization failure for ropsten, got %+v", event)
	}
}

func TestSessionReactorHandlesAccountChangeAfterOutboundBurst(test *testing.T) {
	test.Parallel()
	accountB := mustAccount(test, testAddressB)
	fixture := newSessionFixture(test, &Wallet{Address: mustAccount(test, testAddressA), Network: NetworkMainnet})
	bus := NewEventBus()
	events := bus.SubscribeKinds(1, SessionEventKinds()...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fixture.reactor.Run(ctx, events)
	}()

	for index := 0; index < 10; index++ {
		bus.Publish(ctx, Event{Kind: EventBalanceReady})
		bus.Publish(ctx, Event{Kind: EventWrapManaSucceeded, TxHash: "0xdeposit"})
		bus.Publish(ctx, Event{Kind: EventVoteFailed})
	}
	fixture.source.set(&Wallet{Address: accountB, Network: NetworkMainnet})
	bus.Publish(ctx, Event{Kind: EventAccountChange, Account: accountB, Network: NetworkMainnet})

	if entered := <-fixture.source.entered; entered != accountB.String() {
		test.Fatalf("expected aggregation for B, got %s", entered)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if stored := fixture.wallets.Get(); stored != nil && stored.Address == accountB {
			break
		}
		if time.Now().After(deadline) {
			test.Fatalf("account change was never handled")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		test.Fatalf("expected canceled run, got %v", err)
	}
	if fixture.reactor.BalanceEpoch() != 1 {
		test.Fatalf("expected one balance request, got %d", fixture.reactor.BalanceEpoch())
	}
}

func TestSessionReactorRunStopsWhenEventsClose(test *testing.T) {
	test.Parallel()
	fixture := newSessionFixture(test, nil)
	events := make(chan Event)
	close(events)
	if err := fixture.reactor.Run(context.Background(), events); err != nil {
		test.Fatalf("expected clean stop, got %v", err)
	}
}

func TestNewSessionReactorValidatesNetwork(test *testing.T) {
	test.Parallel()
	aggregator := mustAggregator(test, &stubBinder{})
	_, err := NewSessionReactor(SessionDependencies{
		Source:     newGatedSource(nil),
		Aggregator: aggregator,
		Wallets:    NewWalletStore(),
		Network:    "rinkeby",
	})
	if !errors.Is(err, ErrUnknownNetwork) {
		test.Fatalf("expected ErrUnknownNetwork, got %v", err)
	}
}
