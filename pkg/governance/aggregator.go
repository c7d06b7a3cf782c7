package governance

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

const (
	fieldManaMiniMe   = "mana_minime"
	fieldLand         = "land"
	fieldLandCommit   = "land_commit"
	fieldEstate       = "estate"
	fieldEstateSize   = "estate_size"
	fieldEstateCommit = "estate_commit"
)

// BalanceAggregator derives the extended wallet record from on-chain balances.
type BalanceAggregator struct {
	binder  ContractBinder
	options serviceOptions
}

// NewBalanceAggregator wires a BalanceAggregator.
func NewBalanceAggregator(binder ContractBinder, options ...ServiceOption) (*BalanceAggregator, error) {
	if binder == nil {
		return nil, fmt.Errorf("%w: contract binder is nil", ErrInvalidServiceConfig)
	}
	return &BalanceAggregator{binder: binder, options: collectOptions(options)}, nil
}

type rawBalances struct {
	manaMiniMe   *big.Int
	land         *big.Int
	landCommit   bool
	estate       *big.Int
	estateSize   *big.Int
	estateCommit bool
}

// Aggregate reads the six balances in parallel and returns a fresh wallet record.
// A nil wallet (logged out session) yields nil. Individual read failures resolve to
// zero/false; only a missing contract binding fails the aggregate.
func (aggregator *BalanceAggregator) Aggregate(ctx context.Context, wallet *Wallet) (*Wallet, error) {
	if wallet == nil {
		return nil, nil
	}
	contracts, err := aggregator.binder.Contracts(ctx, wallet.Network)
	if err != nil {
		balanceError := &BalanceError{Message: err.Error(), Err: err}
		aggregator.options.logOperation(ctx, OperationLog{
			Operation: operationAggregate,
			Account:   wallet.Address,
			Network:   wallet.Network,
			Error:     balanceError,
		})
		return nil, balanceError
	}
	if contracts.ManaMiniMe == nil || contracts.Land == nil || contracts.Estate == nil {
		balanceError := &BalanceError{Message: "contracts not bound", Err: ErrContractsUnavailable}
		aggregator.options.logOperation(ctx, OperationLog{
			Operation: operationAggregate,
			Account:   wallet.Address,
			Network:   wallet.Network,
			Error:     balanceError,
		})
		return nil, balanceError
	}

	owner := wallet.Address.Address()
	raw := aggregator.readAll(ctx, wallet, contracts, owner)

	extended := &Wallet{
		Address:      wallet.Address,
		Network:      wallet.Network,
		Mana:         wallet.Mana,
		ManaMiniMe:   FromWei(raw.manaMiniMe),
		Land:         clampInt64(raw.land),
		LandCommit:   raw.landCommit,
		Estate:       clampInt64(raw.estate),
		EstateSize:   clampInt64(raw.estateSize),
		EstateCommit: raw.estateCommit,
	}
	extended.ManaVotingPower = clampInt64(new(big.Int).Quo(raw.manaMiniMe, tokenScale))
	ComputeVotingPower(extended)

	aggregator.options.logOperation(ctx, OperationLog{
		Operation: operationAggregate,
		Account:   wallet.Address,
		Network:   wallet.Network,
		Detail:    fmt.Sprintf("voting_power=%d", extended.VotingPower),
	})
	return extended, nil
}

func (aggregator *BalanceAggregator) readAll(ctx context.Context, wallet *Wallet, contracts ContractSet, owner common.Address) rawBalances {
	raw := rawBalances{
		manaMiniMe: big.NewInt(0),
		land:       big.NewInt(0),
		estate:     big.NewInt(0),
		estateSize: big.NewInt(0),
	}
	var group errgroup.Group
	group.Go(func() error {
		if value, ok := aggregator.readInt(ctx, wallet, fieldManaMiniMe, func() (*big.Int, error) { return contracts.ManaMiniMe.BalanceOf(ctx, owner) }); ok {
			raw.manaMiniMe = value
		}
		return nil
	})
	group.Go(func() error {
		if value, ok := aggregator.readInt(ctx, wallet, fieldLand, func() (*big.Int, error) { return contracts.Land.BalanceOf(ctx, owner) }); ok {
			raw.land = value
		}
		return nil
	})
	group.Go(func() error {
		raw.landCommit = aggregator.readBool(ctx, wallet, fieldLandCommit, func() (bool, error) { return contracts.Land.RegisteredBalance(ctx, owner) })
		return nil
	})
	group.Go(func() error {
		if value, ok := aggregator.readInt(ctx, wallet, fieldEstate, func() (*big.Int, error) { return contracts.Estate.BalanceOf(ctx, owner) }); ok {
			raw.estate = value
		}
		return nil
	})
	group.Go(func() error {
		if value, ok := aggregator.readInt(ctx, wallet, fieldEstateSize, func() (*big.Int, error) { return contracts.Estate.GetLANDsSize(ctx, owner) }); ok {
			raw.estateSize = value
		}
		return nil
	})
	group.Go(func() error {
		raw.estateCommit = aggregator.readBool(ctx, wallet, fieldEstateCommit, func() (bool, error) { return contracts.Estate.RegisteredBalance(ctx, owner) })
		return nil
	})
	_ = group.Wait()
	return raw
}

func (aggregator *BalanceAggregator) readInt(ctx context.Context, wallet *Wallet, field string, read func() (*big.Int, error)) (*big.Int, bool) {
	value, err := read()
	if err != nil {
		aggregator.logReadFailure(ctx, wallet, field, err)
		return nil, false
	}
	if value == nil || value.Sign() < 0 {
		return nil, false
	}
	return value, true
}

func (aggregator *BalanceAggregator) readBool(ctx context.Context, wallet *Wallet, field string, read func() (bool, error)) bool {
	value, err := read()
	if err != nil {
		aggregator.logReadFailure(ctx, wallet, field, err)
		return false
	}
	return value
}

func (aggregator *BalanceAggregator) logReadFailure(ctx context.Context, wallet *Wallet, field string, err error) {
	aggregator.options.logOperation(ctx, OperationLog{
		Operation: operationReadField,
		Account:   wallet.Address,
		Network:   wallet.Network,
		Detail:    field,
		Error:     err,
	})
}

// ComputeVotingPower fills the LAND, Estate and total voting-power fields from the
// balances already present on the wallet. ManaVotingPower is expected to be set.
func ComputeVotingPower(wallet *Wallet) {
	if wallet == nil {
		return
	}
	wallet.LandVotingPower = 0
	if wallet.LandCommit {
		wallet.LandVotingPower = saturatingProduct(wallet.Land, VotingPowerByLand)
	}
	wallet.EstateVotingPower = saturatingProduct(wallet.Estate, wallet.EstateSize, VotingPowerByLand)
	total := new(big.Int).Add(big.NewInt(wallet.ManaVotingPower), big.NewInt(wallet.LandVotingPower))
	wallet.VotingPower = clampInt64(total.Add(total, big.NewInt(wallet.EstateVotingPower)))
}

// saturatingProduct multiplies in big.Int and clamps the result into [0, MaxInt64].
func saturatingProduct(factors ...int64) int64 {
	product := big.NewInt(1)
	for _, factor := range factors {
		product.Mul(product, big.NewInt(factor))
	}
	return clampInt64(product)
}

func clampInt64(value *big.Int) int64 {
	if value == nil || value.Sign() <= 0 {
		return 0
	}
	if !value.IsInt64() {
		return 1<<63 - 1
	}
	return value.Int64()
}
