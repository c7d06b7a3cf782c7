package governance

import (
	"context"
	"fmt"
	"strconv"
)

// WrappingDependencies collects the collaborators of WrappingService.
type WrappingDependencies struct {
	Binder    ContractBinder
	Wallets   *WalletStore
	Publisher Publisher
	Tracker   TransactionTracker
	Navigator Navigator
}

// WrappingService coordinates MANA wrap/unwrap and LAND/Estate balance registration.
type WrappingService struct {
	binder    ContractBinder
	wallets   *WalletStore
	publisher Publisher
	tracker   TransactionTracker
	navigator Navigator
	tasks     *taskFlags
	options   serviceOptions
}

// WrappingStatus reports which wrapping tasks are in flight.
type WrappingStatus struct {
	WrappingMana      bool `json:"isWrappingMana"`
	UnwrappingMana    bool `json:"isUnwrappingMana"`
	RegisteringLand   bool `json:"isRegisteringLand"`
	RegisteringEstate bool `json:"isRegisteringEstate"`
}

// NewWrappingService wires a WrappingService.
func NewWrappingService(dependencies WrappingDependencies, options ...ServiceOption) (*WrappingService, error) {
	if dependencies.Binder == nil {
		return nil, fmt.Errorf("%w: contract binder is nil", ErrInvalidServiceConfig)
	}
	if dependencies.Wallets == nil {
		return nil, fmt.Errorf("%w: wallet store is nil", ErrInvalidServiceConfig)
	}
	return &WrappingService{
		binder:    dependencies.Binder,
		wallets:   dependencies.Wallets,
		publisher: dependencies.Publisher,
		tracker:   dependencies.Tracker,
		navigator: dependencies.Navigator,
		tasks:     newTaskFlags(),
		options:   collectOptions(options),
	}, nil
}

// Status returns the loading flags of the wrapping tasks.
func (service *WrappingService) Status() WrappingStatus {
	return WrappingStatus{
		WrappingMana:      service.tasks.loading(taskWrapMana),
		UnwrappingMana:    service.tasks.loading(taskUnwrapMana),
		RegisteringLand:   service.tasks.loading(taskRegisterLand),
		RegisteringEstate: service.tasks.loading(taskRegisterEstate),
	}
}

// WrapMana deposits up to the current MANA balance into MANA-MiniMe, approving the
// wrapper first when needed. It returns the deposit transaction hash.
func (service *WrappingService) WrapMana(ctx context.Context, amount float64) (string, error) {
	if !service.tasks.begin(taskWrapMana) {
		return "", ErrTaskInProgress
	}
	defer service.tasks.end(taskWrapMana)

	wallet := service.wallets.Get()
	hash, err := service.wrapMana(ctx, wallet, amount)
	service.finish(ctx, wallet, operationWrapMana, EventWrapManaSucceeded, EventWrapManaFailed, hash, strconv.FormatFloat(amount, 'f', -1, 64), err)
	return hash, err
}

func (service *WrappingService) wrapMana(ctx context.Context, wallet *Wallet, amount float64) (string, error) {
	if wallet == nil {
		return "", ErrNotConnected
	}
	value := ToWei(ClampAmount(amount, wallet.Mana))
	contracts, err := service.binder.Contracts(ctx, wallet.Network)
	if err != nil {
		return "", err
	}
	if contracts.ManaMiniMe == nil {
		return "", &ContractError{Kind: ContractErrorNetwork, Message: "mana minime contract not bound", Err: ErrContractsUnavailable}
	}
	machine := NewAllowanceMachine(contracts.Mana, wallet.Address.Address(), contracts.WrapperAddress)
	approvals, err := machine.EnsureMax(ctx)
	for _, approval := range approvals {
		service.options.logOperation(ctx, OperationLog{
			Operation: operationApprove,
			Account:   wallet.Address,
			Network:   wallet.Network,
			TxHash:    approval.Hash(),
		})
	}
	if err != nil {
		return "", err
	}
	deposit, err := contracts.ManaMiniMe.Deposit(ctx, value)
	if err != nil {
		return "", err
	}
	machine.Complete()
	service.track(ctx, deposit)
	return deposit.Hash(), nil
}

// UnwrapMana withdraws MANA-MiniMe back to MANA and navigates to the wrapping view
// with completed=true.
//
// The amount is clamped against the unwrapped MANA balance, not the MiniMe balance.
func (service *WrappingService) UnwrapMana(ctx context.Context, amount float64) (string, error) {
	if !service.tasks.begin(taskUnwrapMana) {
		return "", ErrTaskInProgress
	}
	defer service.tasks.end(taskUnwrapMana)

	wallet := service.wallets.Get()
	hash, err := service.unwrapMana(ctx, wallet, amount)
	service.finish(ctx, wallet, operationUnwrapMana, EventUnwrapManaSucceeded, EventUnwrapManaFailed, hash, strconv.FormatFloat(amount, 'f', -1, 64), err)
	if err == nil && service.navigator != nil {
		service.navigator.Navigate(WrappingLocation(service.navigator.CurrentQuery()), false)
	}
	return hash, err
}

func (service *WrappingService) unwrapMana(ctx context.Context, wallet *Wallet, amount float64) (string, error) {
	if wallet == nil {
		return "", ErrNotConnected
	}
	value := ToWei(ClampAmount(amount, wallet.Mana))
	contracts, err := service.binder.Contracts(ctx, wallet.Network)
	if err != nil {
		return "", err
	}
	if contracts.ManaMiniMe == nil {
		return "", &ContractError{Kind: ContractErrorNetwork, Message: "mana minime contract not bound", Err: ErrContractsUnavailable}
	}
	withdrawal, err := contracts.ManaMiniMe.Withdraw(ctx, value)
	if err != nil {
		return "", err
	}
	service.track(ctx, withdrawal)
	return withdrawal.Hash(), nil
}

// RegisterLandBalance registers the LAND balance with governance.
func (service *WrappingService) RegisterLandBalance(ctx context.Context) (string, error) {
	if !service.tasks.begin(taskRegisterLand) {
		return "", ErrTaskInProgress
	}
	defer service.tasks.end(taskRegisterLand)

	wallet := service.wallets.Get()
	hash, err := service.register(ctx, wallet, func(contracts ContractSet) (Transaction, error) {
		if contracts.Land == nil {
			return nil, &ContractError{Kind: ContractErrorNetwork, Message: "land contract not bound", Err: ErrContractsUnavailable}
		}
		return contracts.Land.RegisterBalance(ctx)
	})
	service.finish(ctx, wallet, operationRegisterLand, EventRegisterLandSucceeded, EventRegisterLandFailed, hash, "", err)
	return hash, err
}

// RegisterEstateBalance registers the Estate balance with governance.
func (service *WrappingService) RegisterEstateBalance(ctx context.Context) (string, error) {
	if !service.tasks.begin(taskRegisterEstate) {
		return "", ErrTaskInProgress
	}
	defer service.tasks.end(taskRegisterEstate)

	wallet := service.wallets.Get()
	hash, err := service.register(ctx, wallet, func(contracts ContractSet) (Transaction, error) {
		if contracts.Estate == nil {
			return nil, &ContractError{Kind: ContractErrorNetwork, Message: "estate contract not bound", Err: ErrContractsUnavailable}
		}
		return contracts.Estate.RegisterBalance(ctx)
	})
	service.finish(ctx, wallet, operationRegisterEstate, EventRegisterEstateSucceeded, EventRegisterEstateFailed, hash, "", err)
	return hash, err
}

func (service *WrappingService) register(ctx context.Context, wallet *Wallet, submit func(ContractSet) (Transaction, error)) (string, error) {
	if wallet == nil {
		return "", ErrNotConnected
	}
	contracts, err := service.binder.Contracts(ctx, wallet.Network)
	if err != nil {
		return "", err
	}
	transaction, err := submit(contracts)
	if err != nil {
		return "", err
	}
	service.track(ctx, transaction)
	return transaction.Hash(), nil
}

func (service *WrappingService) track(ctx context.Context, transaction Transaction) {
	if service.tracker != nil {
		service.tracker.Track(ctx, transaction)
	}
}

func (service *WrappingService) finish(ctx context.Context, wallet *Wallet, operation string, succeeded EventKind, failed EventKind, hash string, detail string, err error) {
	event := Event{Kind: succeeded, TxHash: hash}
	if err != nil {
		event = Event{Kind: failed, Error: ErrorMessage(err)}
	}
	entry := OperationLog{Operation: operation, TxHash: hash, Detail: detail, Error: err}
	if wallet != nil {
		event.Account = wallet.Address
		event.Network = wallet.Network
		entry.Account = wallet.Address
		entry.Network = wallet.Network
	}
	publish(ctx, service.publisher, event)
	service.options.logOperation(ctx, entry)
}
