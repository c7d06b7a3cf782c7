package governance

import (
	"context"
	"time"
)

// OperationLogger records domain-level events emitted by governance operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a governance operation and its outcome.
type OperationLog struct {
	Operation  string
	Account    Account
	Network    Network
	ProposalID string
	TxHash     string
	Detail     string
	Status     string
	Error      error
}

// ServiceOption configures the governance services.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger OperationLogger
	nowFn  func() int64
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(options *serviceOptions) {
		options.logger = logger
	}
}

// WithClock overrides the unix-seconds clock used to stamp records.
func WithClock(now func() int64) ServiceOption {
	return func(options *serviceOptions) {
		if now != nil {
			options.nowFn = now
		}
	}
}

func collectOptions(options []ServiceOption) serviceOptions {
	collected := serviceOptions{nowFn: func() int64 { return time.Now().UTC().Unix() }}
	for _, option := range options {
		if option != nil {
			option(&collected)
		}
	}
	return collected
}

func (options serviceOptions) logOperation(ctx context.Context, entry OperationLog) {
	if options.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	options.logger.LogOperation(ctx, entry)
}
