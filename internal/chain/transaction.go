package chain

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
)

const defaultConfirmationPoll = time.Second

type confirmationBackend interface {
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
}

// transactionHandle tracks one submitted transaction until it is mined and buried
// under the requested number of confirmations.
type transactionHandle struct {
	transaction *types.Transaction
	backend     confirmationBackend
	poll        time.Duration
}

func newTransactionHandle(transaction *types.Transaction, backend confirmationBackend) *transactionHandle {
	return &transactionHandle{transaction: transaction, backend: backend, poll: defaultConfirmationPoll}
}

func (handle *transactionHandle) Hash() string {
	return handle.transaction.Hash().Hex()
}

func (handle *transactionHandle) Wait(ctx context.Context, confirmations uint64) (governance.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, handle.backend, handle.transaction)
	if err != nil {
		return governance.Receipt{}, classifyError("wait_mined", err)
	}
	result := governance.Receipt{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Succeeded:   receipt.Status == types.ReceiptStatusSuccessful,
	}
	if confirmations <= 1 {
		return result, nil
	}
	target := result.BlockNumber + confirmations - 1
	ticker := time.NewTicker(handle.poll)
	defer ticker.Stop()
	for {
		head, err := handle.backend.BlockNumber(ctx)
		if err != nil {
			return result, classifyError("block_number", err)
		}
		if head >= target {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, classifyError("wait_confirmations", ctx.Err())
		case <-ticker.C:
		}
	}
}
