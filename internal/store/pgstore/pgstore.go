package pgstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintActivityPrimary = "activity_entries_pkey"
	pgUniqueViolationCode     = "23505"
	errorOperationStore       = "store"
	errorSubjectActivity      = "activity"
	errorCodeDuplicate        = "duplicate"
	errorCodeInsert           = "insert"
	errorCodeInvalid          = "invalid"
	errorCodeList             = "list"
	errorCodeMigrate          = "migrate"

	sqlCreateActivityTable = `
		create table if not exists activity_entries (
			entry_id uuid primary key default gen_random_uuid(),
			account text not null,
			network text not null,
			operation text not null,
			status text not null,
			proposal_id text not null,
			tx_hash text not null,
			metadata jsonb not null default '{}'::jsonb,
			created_at timestamptz not null default now()
		);
		create index if not exists idx_activity_account_created on activity_entries(account, created_at);
		create index if not exists idx_activity_entries_proposal_id on activity_entries(proposal_id);
	`

	sqlInsertActivity = `
		insert into activity_entries(
			entry_id, account, network, operation, status, proposal_id, tx_hash, metadata, created_at
		)
		values(
			coalesce(nullif($1,'')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7,
			jsonb_strip_nulls(jsonb_build_object('detail', nullif($8,''), 'error', nullif($9,''))),
			coalesce(to_timestamp(nullif($10,0)), now())
		)
	`

	sqlListActivity = `
		select
			entry_id::text,
			account,
			network,
			operation,
			status,
			proposal_id,
			tx_hash,
			coalesce(metadata->>'detail',''),
			coalesce(metadata->>'error',''),
			extract(epoch from created_at)::bigint
		from activity_entries
		where created_at < coalesce(to_timestamp(nullif($1,0)), now() + interval '1 second')
		and ($2 = '' or account = $2)
		order by created_at desc
		limit $3
	`
)

// Store implements governance.ActivityStore using a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the journal table and its indexes.
func (store *Store) Migrate(ctx context.Context) error {
	if _, err := store.pool.Exec(ctx, sqlCreateActivityTable); err != nil {
		return wrapStoreError(errorSubjectActivity, errorCodeMigrate, err)
	}
	return nil
}

func (store *Store) AppendActivity(ctx context.Context, entry governance.ActivityEntry) error {
	if entry.Operation == "" {
		return wrapStoreError(errorSubjectActivity, errorCodeInvalid, governance.ErrInvalidActivity)
	}
	_, err := store.pool.Exec(ctx, sqlInsertActivity,
		entry.ID,
		entry.Account.String(),
		entry.Network.String(),
		entry.Operation,
		entry.Status,
		entry.ProposalID,
		entry.TxHash,
		entry.Detail,
		entry.ErrorMessage,
		entry.CreatedUnixUTC,
	)
	if isDuplicateActivity(err) {
		return wrapStoreError(errorSubjectActivity, errorCodeDuplicate, governance.ErrDuplicateActivity)
	}
	if err != nil {
		return wrapStoreError(errorSubjectActivity, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListActivity(ctx context.Context, query governance.ActivityQuery) ([]governance.ActivityEntry, error) {
	query = query.Normalize()
	rows, err := store.pool.Query(ctx, sqlListActivity, query.BeforeUnixUTC, query.Account.String(), query.Limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectActivity, errorCodeList, err)
	}
	defer rows.Close()

	entries, err := scanActivity(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectActivity, errorCodeInvalid, err)
	}
	return entries, nil
}

func scanActivity(rows pgx.Rows) ([]governance.ActivityEntry, error) {
	var entries []governance.ActivityEntry
	for rows.Next() {
		var (
			entry        governance.ActivityEntry
			accountValue string
			networkValue string
		)
		if err := rows.Scan(
			&entry.ID,
			&accountValue,
			&networkValue,
			&entry.Operation,
			&entry.Status,
			&entry.ProposalID,
			&entry.TxHash,
			&entry.Detail,
			&entry.ErrorMessage,
			&entry.CreatedUnixUTC,
		); err != nil {
			return nil, err
		}
		if accountValue != "" {
			account, err := governance.NewAccount(accountValue)
			if err != nil {
				return nil, err
			}
			entry.Account = account
		}
		entry.Network = governance.Network(networkValue)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func wrapStoreError(subject string, code string, err error) error {
	return governance.WrapError(errorOperationStore, subject, code, err)
}

func isDuplicateActivity(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintActivityPrimary
	}
	return false
}
