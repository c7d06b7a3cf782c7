package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	constraintActivityPrimary = "activity_entries_pkey"
	defaultMetadataJSON       = "{}"
	pgUniqueViolationCode     = "23505"
	sqliteConstraintCode      = 19
	errorOperationStore       = "store"
	errorSubjectActivity      = "activity"
	errorCodeDuplicate        = "duplicate"
	errorCodeInsert           = "insert"
	errorCodeInvalid          = "invalid"
	errorCodeList             = "list"
	errorCodeMigrate          = "migrate"
)

// Store implements governance.ActivityStore using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the journal table when the driver supports auto-migration.
func (store *Store) Migrate(ctx context.Context) error {
	if err := store.db.WithContext(ctx).AutoMigrate(&ActivityRecord{}); err != nil {
		return wrapStoreError(errorSubjectActivity, errorCodeMigrate, err)
	}
	return nil
}

type activityMetadata struct {
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (store *Store) AppendActivity(ctx context.Context, entry governance.ActivityEntry) error {
	if entry.Operation == "" {
		return wrapStoreError(errorSubjectActivity, errorCodeInvalid, governance.ErrInvalidActivity)
	}
	metadata, err := json.Marshal(activityMetadata{Detail: entry.Detail, Error: entry.ErrorMessage})
	if err != nil {
		return wrapStoreError(errorSubjectActivity, errorCodeInvalid, err)
	}
	record := ActivityRecord{
		EntryID:    entry.ID,
		Account:    entry.Account.String(),
		Network:    entry.Network.String(),
		Operation:  entry.Operation,
		Status:     entry.Status,
		ProposalID: entry.ProposalID,
		TxHash:     entry.TxHash,
		Metadata:   datatypesJSON(metadata),
		CreatedAt:  time.Unix(entry.CreatedUnixUTC, 0).UTC(),
	}
	if entry.CreatedUnixUTC == 0 {
		record.CreatedAt = time.Now().UTC()
	}
	err = store.db.WithContext(ctx).Create(&record).Error
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
	before := time.Unix(query.BeforeUnixUTC, 0).UTC()
	if query.BeforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}

	statement := store.db.WithContext(ctx).Where("created_at < ?", before)
	if !query.Account.IsZero() {
		statement = statement.Where("account = ?", query.Account.String())
	}
	var rows []ActivityRecord
	err := statement.Order("created_at DESC").Limit(query.Limit).Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectActivity, errorCodeList, err)
	}

	entries := make([]governance.ActivityEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapActivityRecord(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectActivity, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return governance.WrapError(errorOperationStore, subject, code, err)
}

func mapActivityRecord(row ActivityRecord) (governance.ActivityEntry, error) {
	var account governance.Account
	if row.Account != "" {
		parsed, err := governance.NewAccount(row.Account)
		if err != nil {
			return governance.ActivityEntry{}, err
		}
		account = parsed
	}
	var metadata activityMetadata
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			return governance.ActivityEntry{}, err
		}
	}
	return governance.ActivityEntry{
		ID:             row.EntryID,
		Operation:      row.Operation,
		Status:         row.Status,
		Account:        account,
		Network:        governance.Network(row.Network),
		ProposalID:     row.ProposalID,
		TxHash:         row.TxHash,
		Detail:         metadata.Detail,
		ErrorMessage:   metadata.Error,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func datatypesJSON(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON(raw)
}

func isDuplicateActivity(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintActivityPrimary
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
