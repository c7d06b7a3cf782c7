package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// TransactorFunc returns signing options for writes on a network.
type TransactorFunc func(ctx context.Context, network governance.Network) (*bind.TransactOpts, error)

var errReadOnly = errors.New("no transactor configured")

// contract wraps a bind.BoundContract with typed calls and ContractError mapping.
type contract struct {
	name       string
	network    governance.Network
	bound      *bind.BoundContract
	backend    Backend
	transactor TransactorFunc
}

func newContract(name string, network governance.Network, address common.Address, parsed abi.ABI, backend Backend, transactor TransactorFunc) *contract {
	return &contract{
		name:       name,
		network:    network,
		bound:      bind.NewBoundContract(address, parsed, backend, backend, backend),
		backend:    backend,
		transactor: transactor,
	}
}

func (binding *contract) callBigInt(ctx context.Context, method string, params ...interface{}) (*big.Int, error) {
	var out []interface{}
	if err := binding.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, classifyError(binding.name+"."+method, err)
	}
	if len(out) == 0 {
		return nil, &governance.ContractError{Kind: governance.ContractErrorNetwork, Message: binding.name + "." + method + ": empty result"}
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (binding *contract) callBool(ctx context.Context, method string, params ...interface{}) (bool, error) {
	var out []interface{}
	if err := binding.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return false, classifyError(binding.name+"."+method, err)
	}
	if len(out) == 0 {
		return false, &governance.ContractError{Kind: governance.ContractErrorNetwork, Message: binding.name + "." + method + ": empty result"}
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (binding *contract) transact(ctx context.Context, method string, params ...interface{}) (governance.Transaction, error) {
	if binding.transactor == nil {
		return nil, classifyError(binding.name+"."+method, errReadOnly)
	}
	options, err := binding.transactor(ctx, binding.network)
	if err != nil {
		return nil, classifyError(binding.name+"."+method, err)
	}
	scoped := *options
	scoped.Context = ctx
	transaction, err := binding.bound.Transact(&scoped, method, params...)
	if err != nil {
		return nil, classifyError(binding.name+"."+method, err)
	}
	return newTransactionHandle(transaction, binding.backend), nil
}

type manaToken struct{ *contract }

func (token manaToken) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return token.callBigInt(ctx, methodBalanceOf, owner)
}

func (token manaToken) Allowance(ctx context.Context, owner common.Address, spender common.Address) (*big.Int, error) {
	return token.callBigInt(ctx, methodAllowance, owner, spender)
}

func (token manaToken) Approve(ctx context.Context, spender common.Address, amount *big.Int) (governance.Transaction, error) {
	return token.transact(ctx, methodApprove, spender, amount)
}

type manaMiniMeToken struct{ *contract }

func (token manaMiniMeToken) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return token.callBigInt(ctx, methodBalanceOf, owner)
}

func (token manaMiniMeToken) Deposit(ctx context.Context, amount *big.Int) (governance.Transaction, error) {
	return token.transact(ctx, methodDeposit, amount)
}

func (token manaMiniMeToken) Withdraw(ctx context.Context, amount *big.Int) (governance.Transaction, error) {
	return token.transact(ctx, methodWithdraw, amount)
}

type registry struct{ *contract }

func (binding registry) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return binding.callBigInt(ctx, methodBalanceOf, owner)
}

func (binding registry) RegisteredBalance(ctx context.Context, owner common.Address) (bool, error) {
	return binding.callBool(ctx, methodRegisteredBalance, owner)
}

func (binding registry) RegisterBalance(ctx context.Context) (governance.Transaction, error) {
	return binding.transact(ctx, methodRegisterBalance)
}

type estateRegistry struct{ registry }

func (binding estateRegistry) GetLANDsSize(ctx context.Context, owner common.Address) (*big.Int, error) {
	return binding.callBigInt(ctx, methodGetLANDsSize, owner)
}

// Binder builds and caches the contract set of each network.
type Binder struct {
	connections *Connections
	book        AddressBook
	transactor  TransactorFunc
	mutex       sync.Mutex
	sets        map[governance.Network]governance.ContractSet
}

// NewBinder wires a Binder. A nil transactor yields read-only contracts.
func NewBinder(connections *Connections, book AddressBook, transactor TransactorFunc) (*Binder, error) {
	if connections == nil {
		return nil, fmt.Errorf("%w: connections are nil", governance.ErrInvalidServiceConfig)
	}
	return &Binder{
		connections: connections,
		book:        book,
		transactor:  transactor,
		sets:        map[governance.Network]governance.ContractSet{},
	}, nil
}

// Contracts returns the contract set of network, binding it on first use.
func (binder *Binder) Contracts(ctx context.Context, network governance.Network) (governance.ContractSet, error) {
	binder.mutex.Lock()
	defer binder.mutex.Unlock()
	if set, ok := binder.sets[network]; ok {
		return set, nil
	}
	addresses, err := binder.book.Lookup(network)
	if err != nil {
		return governance.ContractSet{}, err
	}
	backend, err := binder.connections.Backend(ctx, network)
	if err != nil {
		return governance.ContractSet{}, err
	}
	set := governance.ContractSet{
		Mana:           manaToken{newContract("mana", network, addresses.Mana, manaABI, backend, binder.transactor)},
		ManaMiniMe:     manaMiniMeToken{newContract("mana_minime", network, addresses.ManaMiniMe, manaMiniMeABI, backend, binder.transactor)},
		Land:           registry{newContract("land", network, addresses.Land, landABI, backend, binder.transactor)},
		Estate:         estateRegistry{registry{newContract("estate", network, addresses.Estate, estateABI, backend, binder.transactor)}},
		WrapperAddress: addresses.ManaMiniMe,
	}
	binder.sets[network] = set
	return set, nil
}
