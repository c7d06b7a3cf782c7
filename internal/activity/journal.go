// Package activity records every governance operation in the process log and the
// persistent activity journal.
package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
)

const defaultPersistTimeout = 5 * time.Second

// Journal implements governance.OperationLogger.
type Journal struct {
	logger         *zap.Logger
	store          governance.ActivityStore
	now            func() int64
	persistTimeout time.Duration
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock overrides the unix-seconds clock.
func WithClock(now func() int64) Option {
	return func(journal *Journal) {
		if now != nil {
			journal.now = now
		}
	}
}

// WithPersistTimeout bounds each journal write.
func WithPersistTimeout(timeout time.Duration) Option {
	return func(journal *Journal) {
		if timeout > 0 {
			journal.persistTimeout = timeout
		}
	}
}

// NewJournal builds a journal. A nil store keeps entries in the log only.
func NewJournal(logger *zap.Logger, store governance.ActivityStore, options ...Option) (*Journal, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", governance.ErrInvalidServiceConfig)
	}
	journal := &Journal{
		logger:         logger,
		store:          store,
		now:            func() int64 { return time.Now().UTC().Unix() },
		persistTimeout: defaultPersistTimeout,
	}
	for _, option := range options {
		if option != nil {
			option(journal)
		}
	}
	return journal, nil
}

// LogOperation writes the entry to the log and appends it to the store.
func (journal *Journal) LogOperation(ctx context.Context, entry governance.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.Account.IsZero() {
		fields = append(fields, zap.String("account", entry.Account.String()))
	}
	if entry.Network != "" {
		fields = append(fields, zap.String("network", entry.Network.String()))
	}
	if entry.ProposalID != "" {
		fields = append(fields, zap.String("proposal_id", entry.ProposalID))
	}
	if entry.TxHash != "" {
		fields = append(fields, zap.String("tx_hash", entry.TxHash))
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	if entry.Error != nil {
		journal.logger.Warn("governance operation failed", append(fields, zap.Error(entry.Error))...)
	} else {
		journal.logger.Info("governance operation", fields...)
	}

	if journal.store == nil {
		return
	}
	record, err := governance.NewActivityEntry(entry, journal.now())
	if err != nil {
		journal.logger.Warn("activity entry rejected", zap.String("operation", entry.Operation), zap.Error(err))
		return
	}
	persistContext, cancel := context.WithTimeout(context.WithoutCancel(ctx), journal.persistTimeout)
	defer cancel()
	if err := journal.store.AppendActivity(persistContext, record); err != nil && !errors.Is(err, governance.ErrDuplicateActivity) {
		journal.logger.Error("activity persist failed", zap.String("operation", entry.Operation), zap.Error(err))
	}
}

// Recent lists journal entries newest first.
func (journal *Journal) Recent(ctx context.Context, query governance.ActivityQuery) ([]governance.ActivityEntry, error) {
	if journal.store == nil {
		return []governance.ActivityEntry{}, nil
	}
	return journal.store.ListActivity(ctx, query.Normalize())
}
