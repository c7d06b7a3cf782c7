package governance

import (
	"context"
	"sync"
)

// EventKind discriminates Event values.
type EventKind int

const (
	EventConnectSuccess EventKind = iota + 1
	EventAccountChange
	EventNetworkChange
	EventTransactionConfirmed
	EventOrganizationLoadRequested
	EventStorageLoaded

	EventBalanceReady
	EventBalanceFailed
	EventWrapManaSucceeded
	EventWrapManaFailed
	EventUnwrapManaSucceeded
	EventUnwrapManaFailed
	EventRegisterLandSucceeded
	EventRegisterLandFailed
	EventRegisterEstateSucceeded
	EventRegisterEstateFailed
	EventOrganizationLoaded
	EventOrganizationFailed
	EventAppsLoadRequested
	EventVoteSucceeded
	EventVoteFailed
)

var eventKindNames = map[EventKind]string{
	EventConnectSuccess:            "connect-success",
	EventAccountChange:             "account-change",
	EventNetworkChange:             "network-change",
	EventTransactionConfirmed:      "transaction-confirmed",
	EventOrganizationLoadRequested: "organization-load-requested",
	EventStorageLoaded:             "storage-loaded",
	EventBalanceReady:              "balance-ready",
	EventBalanceFailed:             "balance-failed",
	EventWrapManaSucceeded:         "wrap-mana-succeeded",
	EventWrapManaFailed:            "wrap-mana-failed",
	EventUnwrapManaSucceeded:       "unwrap-mana-succeeded",
	EventUnwrapManaFailed:          "unwrap-mana-failed",
	EventRegisterLandSucceeded:     "register-land-succeeded",
	EventRegisterLandFailed:        "register-land-failed",
	EventRegisterEstateSucceeded:   "register-estate-succeeded",
	EventRegisterEstateFailed:      "register-estate-failed",
	EventOrganizationLoaded:        "organization-loaded",
	EventOrganizationFailed:        "organization-failed",
	EventAppsLoadRequested:         "apps-load-requested",
	EventVoteSucceeded:             "vote-succeeded",
	EventVoteFailed:                "vote-failed",
}

func (kind EventKind) String() string {
	if name, ok := eventKindNames[kind]; ok {
		return name
	}
	return "unknown"
}

// Event is the tagged variant exchanged between the wallet provider, the reactor and observers.
type Event struct {
	Kind    EventKind
	Account Account
	Network Network
	TxHash  string
	Wallet  *Wallet
	Error   string
}

// Publisher receives outbound events.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event)

// Publish calls fn.
func (fn PublisherFunc) Publish(ctx context.Context, event Event) {
	fn(ctx, event)
}

// SessionEventKinds lists the events that drive the session reactor.
func SessionEventKinds() []EventKind {
	return []EventKind{
		EventConnectSuccess,
		EventAccountChange,
		EventNetworkChange,
		EventTransactionConfirmed,
		EventOrganizationLoadRequested,
		EventStorageLoaded,
	}
}

type subscription struct {
	channel  chan Event
	kinds    map[EventKind]struct{}
	lossless bool
}

func (subscriber subscription) accepts(kind EventKind) bool {
	if subscriber.kinds == nil {
		return true
	}
	_, ok := subscriber.kinds[kind]
	return ok
}

// EventBus fans published events out to subscribers.
type EventBus struct {
	mutex       sync.RWMutex
	subscribers []subscription
	done        chan struct{}
	closeOnce   sync.Once
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{done: make(chan struct{})}
}

// Subscribe registers a buffered subscriber channel for every kind. Events are dropped
// for this subscriber while its buffer is full.
func (bus *EventBus) Subscribe(buffer int) <-chan Event {
	return bus.subscribe(subscription{channel: make(chan Event, buffer)})
}

// SubscribeKinds registers a subscriber that receives only kinds and never loses one:
// Publish waits for buffer space until its context ends or the bus closes.
func (bus *EventBus) SubscribeKinds(buffer int, kinds ...EventKind) <-chan Event {
	accepted := make(map[EventKind]struct{}, len(kinds))
	for _, kind := range kinds {
		accepted[kind] = struct{}{}
	}
	return bus.subscribe(subscription{channel: make(chan Event, buffer), kinds: accepted, lossless: true})
}

func (bus *EventBus) subscribe(subscriber subscription) <-chan Event {
	bus.mutex.Lock()
	bus.subscribers = append(bus.subscribers, subscriber)
	bus.mutex.Unlock()
	return subscriber.channel
}

// Publish delivers the event to every interested subscriber.
func (bus *EventBus) Publish(ctx context.Context, event Event) {
	bus.mutex.RLock()
	defer bus.mutex.RUnlock()
	for _, subscriber := range bus.subscribers {
		if !subscriber.accepts(event.Kind) {
			continue
		}
		if !subscriber.lossless {
			select {
			case subscriber.channel <- event:
			default:
			}
			continue
		}
		select {
		case subscriber.channel <- event:
		case <-ctx.Done():
		case <-bus.done:
		}
	}
}

// Close releases blocked publishers and closes every subscriber channel.
func (bus *EventBus) Close() {
	bus.closeOnce.Do(func() { close(bus.done) })
	bus.mutex.Lock()
	defer bus.mutex.Unlock()
	for _, subscriber := range bus.subscribers {
		close(subscriber.channel)
	}
	bus.subscribers = nil
}

func publish(ctx context.Context, publisher Publisher, event Event) {
	if publisher == nil {
		return
	}
	publisher.Publish(ctx, event)
}
