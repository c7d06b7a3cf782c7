package governance

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the governance services.
var (
	ErrUnknownNetwork         = errors.New("unknown network")
	ErrInvalidAccount         = errors.New("invalid account")
	ErrInvalidProposalStatus  = errors.New("invalid proposal status")
	ErrInvalidServiceConfig   = errors.New("invalid service config")
	ErrNotConnected           = errors.New("wallet not connected")
	ErrContractsUnavailable   = errors.New("contracts unavailable")
	ErrTaskInProgress         = errors.New("task already in progress")
	ErrProposalNotFound       = errors.New("proposal not found")
	ErrProposalNotLoaded      = errors.New("proposal not loaded")
	ErrVotesNotLoaded         = errors.New("votes not loaded")
	ErrNotCommittee           = errors.New("account is not a committee member")
	ErrNotOwnerOrCommittee    = errors.New("account is neither proposal owner nor committee member")
	ErrStaleResponse          = errors.New("response discarded: proposal changed")
	ErrOrganizationConnection = errors.New("organization connection failed")
)

// ContractErrorKind classifies contract failures.
type ContractErrorKind string

const (
	ContractErrorNetwork        ContractErrorKind = "network"
	ContractErrorReverted       ContractErrorKind = "reverted"
	ContractErrorRejectedByUser ContractErrorKind = "rejected-by-user"
	ContractErrorTimeout        ContractErrorKind = "timeout"
)

// ContractError reports a failed contract read or write.
type ContractError struct {
	Kind    ContractErrorKind
	Message string
	Err     error
}

func (contractError *ContractError) Error() string {
	return fmt.Sprintf("contract %s: %s", contractError.Kind, contractError.Message)
}

func (contractError *ContractError) Unwrap() error {
	return contractError.Err
}

// SignErrorKind classifies signing failures.
type SignErrorKind string

const (
	SignErrorRejected SignErrorKind = "rejected"
	SignErrorDevice   SignErrorKind = "device"
)

// SignError reports a declined or failed signature request.
type SignError struct {
	Kind    SignErrorKind
	Message string
	Err     error
}

func (signError *SignError) Error() string {
	return fmt.Sprintf("sign %s: %s", signError.Kind, signError.Message)
}

func (signError *SignError) Unwrap() error {
	return signError.Err
}

// SubmitError reports a vote refused by the snapshot service.
type SubmitError struct {
	Attempts int
	Message  string
	Err      error
}

func (submitError *SubmitError) Error() string {
	if submitError.Attempts > 0 {
		return fmt.Sprintf("snapshot submit failed after %d attempts: %s", submitError.Attempts, submitError.Message)
	}
	return "snapshot submit failed: " + submitError.Message
}

func (submitError *SubmitError) Unwrap() error {
	return submitError.Err
}

// ValidationError reports invalid local input; it never reaches the network.
type ValidationError struct {
	Field   string
	Message string
}

func (validationError *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", validationError.Field, validationError.Message)
}

// BalanceError reports a total aggregation failure.
type BalanceError struct {
	Message string
	Err     error
}

func (balanceError *BalanceError) Error() string {
	return "balance: " + balanceError.Message
}

func (balanceError *BalanceError) Unwrap() error {
	return balanceError.Err
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// ErrorMessage extracts the human-readable message published with failure events.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var contractError *ContractError
	if errors.As(err, &contractError) {
		return contractError.Message
	}
	var signError *SignError
	if errors.As(err, &signError) {
		return signError.Message
	}
	var submitError *SubmitError
	if errors.As(err, &submitError) {
		return submitError.Message
	}
	var balanceError *BalanceError
	if errors.As(err, &balanceError) {
		return balanceError.Message
	}
	return err.Error()
}
