package governance

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AllowanceState is a step of the approval sequence that precedes a deposit.
type AllowanceState string

const (
	AllowanceStateUnknown    AllowanceState = "unknown"
	AllowanceStateInspecting AllowanceState = "inspecting"
	AllowanceStateAtMax      AllowanceState = "at_max"
	AllowanceStateAtZero     AllowanceState = "at_zero"
	AllowanceStateAtOther    AllowanceState = "at_other"
	AllowanceStateClearing   AllowanceState = "clearing"
	AllowanceStateApproving  AllowanceState = "approving"
	AllowanceStateDone       AllowanceState = "done"
)

const approvalConfirmations uint64 = 1

// AllowanceMachine drives clear -> approve until the wrapper holds the MAX allowance.
// Steps run strictly in sequence; every approve waits for one confirmation before the
// next step is issued.
type AllowanceMachine struct {
	mana    ManaToken
	owner   common.Address
	spender common.Address
	state   AllowanceState
	trail   []AllowanceState
}

// NewAllowanceMachine prepares a machine for a single wrap attempt.
func NewAllowanceMachine(mana ManaToken, owner common.Address, spender common.Address) *AllowanceMachine {
	return &AllowanceMachine{
		mana:    mana,
		owner:   owner,
		spender: spender,
		state:   AllowanceStateUnknown,
		trail:   []AllowanceState{AllowanceStateUnknown},
	}
}

// State returns the current state.
func (machine *AllowanceMachine) State() AllowanceState {
	return machine.state
}

// Trail returns every state visited so far.
func (machine *AllowanceMachine) Trail() []AllowanceState {
	return append([]AllowanceState(nil), machine.trail...)
}

// EnsureMax runs the machine until the allowance is MAX. It returns the transactions
// issued (clear and/or approve) in order.
func (machine *AllowanceMachine) EnsureMax(ctx context.Context) ([]Transaction, error) {
	if machine.mana == nil {
		return nil, &ContractError{Kind: ContractErrorNetwork, Message: "mana contract not bound", Err: ErrContractsUnavailable}
	}
	issued := make([]Transaction, 0, 2)
	for {
		switch machine.state {
		case AllowanceStateUnknown:
			machine.transition(AllowanceStateInspecting)
		case AllowanceStateInspecting:
			current, err := machine.mana.Allowance(ctx, machine.owner, machine.spender)
			if err != nil {
				return issued, err
			}
			switch ClassifyAllowance(current) {
			case AllowanceMax:
				machine.transition(AllowanceStateAtMax)
			case AllowanceEmpty:
				machine.transition(AllowanceStateAtZero)
			default:
				machine.transition(AllowanceStateAtOther)
			}
		case AllowanceStateAtOther:
			machine.transition(AllowanceStateClearing)
		case AllowanceStateClearing:
			transaction, err := machine.approve(ctx, EmptyAllowance())
			if transaction != nil {
				issued = append(issued, transaction)
			}
			if err != nil {
				return issued, err
			}
			machine.transition(AllowanceStateAtZero)
		case AllowanceStateAtZero:
			machine.transition(AllowanceStateApproving)
		case AllowanceStateApproving:
			transaction, err := machine.approve(ctx, MaxAllowance())
			if transaction != nil {
				issued = append(issued, transaction)
			}
			if err != nil {
				return issued, err
			}
			machine.transition(AllowanceStateAtMax)
		case AllowanceStateAtMax:
			return issued, nil
		default:
			return issued, fmt.Errorf("allowance machine in terminal state %s", machine.state)
		}
	}
}

// Complete marks the machine done once the consumer's deposit was issued.
func (machine *AllowanceMachine) Complete() {
	if machine.state == AllowanceStateAtMax {
		machine.transition(AllowanceStateDone)
	}
}

func (machine *AllowanceMachine) approve(ctx context.Context, amount *big.Int) (Transaction, error) {
	transaction, err := machine.mana.Approve(ctx, machine.spender, amount)
	if err != nil {
		return nil, err
	}
	receipt, err := transaction.Wait(ctx, approvalConfirmations)
	if err != nil {
		return transaction, err
	}
	if !receipt.Succeeded {
		return transaction, &ContractError{Kind: ContractErrorReverted, Message: "approve reverted: " + transaction.Hash()}
	}
	return transaction, nil
}

func (machine *AllowanceMachine) transition(next AllowanceState) {
	machine.state = next
	machine.trail = append(machine.trail, next)
}
