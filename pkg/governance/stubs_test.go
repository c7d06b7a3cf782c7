package governance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

const (
	testAddressA   = "0x00000000000000000000000000000000000000aa"
	testAddressB   = "0x00000000000000000000000000000000000000bb"
	testWrapper    = "0x00000000000000000000000000000000000000cc"
	testCommittee  = "0x00000000000000000000000000000000000000dd"
	testProposalID = "proposal-1"
)

func mustAccount(test *testing.T, raw string) Account {
	test.Helper()
	account, err := NewAccount(raw)
	if err != nil {
		test.Fatalf("account %q: %v", raw, err)
	}
	return account
}

func tokens(amount int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(amount), TokenScale())
}

// callLog records contract writes across stubs in issue order.
type callLog struct {
	mutex sync.Mutex
	calls []string
}

func (log *callLog) record(format string, args ...any) {
	log.mutex.Lock()
	defer log.mutex.Unlock()
	log.calls = append(log.calls, fmt.Sprintf(format, args...))
}

func (log *callLog) snapshot() []string {
	log.mutex.Lock()
	defer log.mutex.Unlock()
	return append([]string(nil), log.calls...)
}

type stubTransaction struct {
	hash     string
	reverted bool
	waitErr  error
	waits    []uint64
}

func (transaction *stubTransaction) Hash() string {
	return transaction.hash
}

func (transaction *stubTransaction) Wait(_ context.Context, confirmations uint64) (Receipt, error) {
	transaction.waits = append(transaction.waits, confirmations)
	if transaction.waitErr != nil {
		return Receipt{}, transaction.waitErr
	}
	return Receipt{TxHash: transaction.hash, BlockNumber: 1, Succeeded: !transaction.reverted}, nil
}

type stubMana struct {
	log          *callLog
	balance      *big.Int
	allowance    *big.Int
	allowanceErr error
	approveErr   error
	revertAt     int
	approvals    []*stubTransaction
}

func (mana *stubMana) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	if mana.balance == nil {
		return big.NewInt(0), nil
	}
	return mana.balance, nil
}

func (mana *stubMana) Allowance(context.Context, common.Address, common.Address) (*big.Int, error) {
	if mana.allowanceErr != nil {
		return nil, mana.allowanceErr
	}
	return mana.allowance, nil
}

func (mana *stubMana) Approve(_ context.Context, _ common.Address, amount *big.Int) (Transaction, error) {
	if mana.approveErr != nil {
		return nil, mana.approveErr
	}
	label := amount.String()
	if amount.Cmp(MaxAllowance()) == 0 {
		label = "MAX"
	}
	mana.log.record("approve(%s)", label)
	transaction := &stubTransaction{hash: fmt.Sprintf("0xapprove%d", len(mana.approvals)+1)}
	if mana.revertAt == len(mana.approvals)+1 {
		transaction.reverted = true
	}
	mana.approvals = append(mana.approvals, transaction)
	mana.allowance = new(big.Int).Set(amount)
	return transaction, nil
}

type stubMiniMe struct {
	log        *callLog
	balance    *big.Int
	balanceErr error
	writeErr   error
	deposits   []*big.Int
	withdraws  []*big.Int
}

func (miniMe *stubMiniMe) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	if miniMe.balanceErr != nil {
		return nil, miniMe.balanceErr
	}
	if miniMe.balance == nil {
		return big.NewInt(0), nil
	}
	return miniMe.balance, nil
}

func (miniMe *stubMiniMe) Deposit(_ context.Context, amount *big.Int) (Transaction, error) {
	if miniMe.writeErr != nil {
		return nil, miniMe.writeErr
	}
	miniMe.log.record("deposit(%s)", amount.String())
	miniMe.deposits = append(miniMe.deposits, amount)
	return &stubTransaction{hash: "0xdeposit"}, nil
}

func (miniMe *stubMiniMe) Withdraw(_ context.Context, amount *big.Int) (Transaction, error) {
	if miniMe.writeErr != nil {
		return nil, miniMe.writeErr
	}
	miniMe.log.record("withdraw(%s)", amount.String())
	miniMe.withdraws = append(miniMe.withdraws, amount)
	return &stubTransaction{hash: "0xwithdraw"}, nil
}

type stubRegistry struct {
	mutex         sync.Mutex
	log           *callLog
	name          string
	balance       *big.Int
	balanceErr    error
	registered    bool
	registeredErr error
	size          *big.Int
	sizeErr       error
	registerErr   error
}

func (registry *stubRegistry) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if registry.balanceErr != nil {
		return nil, registry.balanceErr
	}
	if registry.balance == nil {
		return big.NewInt(0), nil
	}
	return registry.balance, nil
}

func (registry *stubRegistry) RegisteredBalance(context.Context, common.Address) (bool, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if registry.registeredErr != nil {
		return false, registry.registeredErr
	}
	return registry.registered, nil
}

func (registry *stubRegistry) GetLANDsSize(context.Context, common.Address) (*big.Int, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if registry.sizeErr != nil {
		return nil, registry.sizeErr
	}
	if registry.size == nil {
		return big.NewInt(0), nil
	}
	return registry.size, nil
}

func (registry *stubRegistry) RegisterBalance(context.Context) (Transaction, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if registry.registerErr != nil {
		return nil, registry.registerErr
	}
	if registry.log != nil {
		registry.log.record("register(%s)", registry.name)
	}
	registry.registered = true
	return &stubTransaction{hash: "0xregister-" + registry.name}, nil
}

type stubChain struct {
	log    *callLog
	mana   *stubMana
	miniMe *stubMiniMe
	land   *stubRegistry
	estate *stubRegistry
}

func newStubChain() *stubChain {
	log := &callLog{}
	return &stubChain{
		log:    log,
		mana:   &stubMana{log: log, allowance: big.NewInt(0)},
		miniMe: &stubMiniMe{log: log},
		land:   &stubRegistry{log: log, name: "land"},
		estate: &stubRegistry{log: log, name: "estate"},
	}
}

func (chain *stubChain) contracts() ContractSet {
	return ContractSet{
		Mana:           chain.mana,
		ManaMiniMe:     chain.miniMe,
		Land:           chain.land,
		Estate:         chain.estate,
		WrapperAddress: common.HexToAddress(testWrapper),
	}
}

type stubBinder struct {
	contracts ContractSet
	err       error
	hook      func(ctx context.Context, network Network)
}

func (binder *stubBinder) Contracts(ctx context.Context, network Network) (ContractSet, error) {
	if binder.hook != nil {
		binder.hook(ctx, network)
	}
	if binder.err != nil {
		return ContractSet{}, binder.err
	}
	if _, err := ParseNetwork(string(network)); err != nil {
		return ContractSet{}, err
	}
	return binder.contracts, nil
}

type recorderLogger struct {
	mutex   sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) byOperation(operation string) []OperationLog {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	var matched []OperationLog
	for _, entry := range logger.entries {
		if entry.Operation == operation {
			matched = append(matched, entry)
		}
	}
	return matched
}

type recordingPublisher struct {
	mutex  sync.Mutex
	events []Event
}

func (publisher *recordingPublisher) Publish(_ context.Context, event Event) {
	publisher.mutex.Lock()
	defer publisher.mutex.Unlock()
	publisher.events = append(publisher.events, event)
}

func (publisher *recordingPublisher) kinds() []EventKind {
	publisher.mutex.Lock()
	defer publisher.mutex.Unlock()
	kinds := make([]EventKind, 0, len(publisher.events))
	for _, event := range publisher.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

func (publisher *recordingPublisher) last(kind EventKind) (Event, bool) {
	publisher.mutex.Lock()
	defer publisher.mutex.Unlock()
	for index := len(publisher.events) - 1; index >= 0; index-- {
		if publisher.events[index].Kind == kind {
			return publisher.events[index], true
		}
	}
	return Event{}, false
}

type stubNavigator struct {
	query       string
	locations   []string
	replacement []bool
}

func (navigator *stubNavigator) CurrentQuery() string {
	return navigator.query
}

func (navigator *stubNavigator) Navigate(location string, replace bool) {
	navigator.locations = append(navigator.locations, location)
	navigator.replacement = append(navigator.replacement, replace)
}

func (navigator *stubNavigator) lastLocation() string {
	if len(navigator.locations) == 0 {
		return ""
	}
	return navigator.locations[len(navigator.locations)-1]
}

var errStubNetwork = errors.New("stub network failure")
