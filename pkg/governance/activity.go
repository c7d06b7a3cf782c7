package governance

import (
	"context"
	"errors"
	"strings"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

var (
	ErrDuplicateActivity = errors.New("activity already recorded")
	ErrInvalidActivity   = errors.New("invalid activity entry")
)

// ActivityEntry is the persisted form of an OperationLog.
type ActivityEntry struct {
	ID             string  `json:"id"`
	Operation      string  `json:"operation"`
	Status         string  `json:"status"`
	Account        Account `json:"account"`
	Network        Network `json:"network,omitempty"`
	ProposalID     string  `json:"proposal_id,omitempty"`
	TxHash         string  `json:"tx_hash,omitempty"`
	Detail         string  `json:"detail,omitempty"`
	ErrorMessage   string  `json:"error,omitempty"`
	CreatedUnixUTC int64   `json:"created_at"`
}

// ActivityQuery selects journal entries newest first.
type ActivityQuery struct {
	Account       Account
	BeforeUnixUTC int64
	Limit         int
}

// ActivityStore persists the activity journal.
type ActivityStore interface {
	AppendActivity(ctx context.Context, entry ActivityEntry) error
	ListActivity(ctx context.Context, query ActivityQuery) ([]ActivityEntry, error)
}

// NewActivityEntry converts an operation log stamped at createdUnixUTC.
func NewActivityEntry(entry OperationLog, createdUnixUTC int64) (ActivityEntry, error) {
	operation := strings.TrimSpace(entry.Operation)
	if operation == "" {
		return ActivityEntry{}, ErrInvalidActivity
	}
	status := entry.Status
	if status == "" {
		status = operationStatusOK
		if entry.Error != nil {
			status = operationStatusError
		}
	}
	return ActivityEntry{
		Operation:      operation,
		Status:         status,
		Account:        entry.Account,
		Network:        entry.Network,
		ProposalID:     entry.ProposalID,
		TxHash:         entry.TxHash,
		Detail:         entry.Detail,
		ErrorMessage:   ErrorMessage(entry.Error),
		CreatedUnixUTC: createdUnixUTC,
	}, nil
}

// Normalize clamps the limit into the supported range.
func (query ActivityQuery) Normalize() ActivityQuery {
	switch {
	case query.Limit <= 0:
		query.Limit = defaultActivityLimit
	case query.Limit > maxActivityLimit:
		query.Limit = maxActivityLimit
	}
	if query.BeforeUnixUTC < 0 {
		query.BeforeUnixUTC = 0
	}
	return query
}
