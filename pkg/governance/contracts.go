package governance

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Receipt is the confirmation of a mined transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Succeeded   bool
}

// Transaction is a submitted contract write.
type Transaction interface {
	Hash() string
	Wait(ctx context.Context, confirmations uint64) (Receipt, error)
}

// ManaToken is the MANA ERC-20 surface.
type ManaToken interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner common.Address, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, spender common.Address, amount *big.Int) (Transaction, error)
}

// ManaMiniMeToken is the wrapped MANA surface.
type ManaMiniMeToken interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Deposit(ctx context.Context, amount *big.Int) (Transaction, error)
	Withdraw(ctx context.Context, amount *big.Int) (Transaction, error)
}

// LandRegistry is the LAND balance-registration surface.
type LandRegistry interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	RegisteredBalance(ctx context.Context, owner common.Address) (bool, error)
	RegisterBalance(ctx context.Context) (Transaction, error)
}

// EstateRegistry extends LandRegistry with the LAND size held inside estates.
type EstateRegistry interface {
	LandRegistry
	GetLANDsSize(ctx context.Context, owner common.Address) (*big.Int, error)
}

// ContractSet bundles the contracts bound for one network.
type ContractSet struct {
	Mana           ManaToken
	ManaMiniMe     ManaMiniMeToken
	Land           LandRegistry
	Estate         EstateRegistry
	WrapperAddress common.Address
}

// ContractBinder resolves the process-wide contract set of a network.
type ContractBinder interface {
	Contracts(ctx context.Context, network Network) (ContractSet, error)
}

// TransactionTracker observes submitted transactions until they confirm.
type TransactionTracker interface {
	Track(ctx context.Context, transaction Transaction)
}
