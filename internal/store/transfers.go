package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type TransferStatus string

const (
	TransferCompleted TransferStatus = "completed"
	TransferRecovered TransferStatus = "recovered"
	TransferFailed    TransferStatus = "failed"
)

func (s TransferStatus) String() string { return string(s) }

func (s TransferStatus) Valid() bool {
	return s == TransferCompleted || s == TransferRecovered || s == TransferFailed
}

// TransferRecord is one audited transfer attempt.
type TransferRecord struct {
	ID               string         `db:"id" json:"id"`
	SourceAccountSID string         `db:"source_account_sid" json:"source_account_sid"`
	TargetAccountSID string         `db:"target_account_sid" json:"target_account_sid"`
	PhoneNumberSID   string         `db:"phone_number_sid" json:"phone_number_sid"`
	PhoneNumber      string         `db:"phone_number" json:"phone_number"`
	BundleSID        string         `db:"bundle_sid" json:"bundle_sid"`
	AddressSID       string         `db:"address_sid" json:"address_sid"`
	Status           TransferStatus `db:"status" json:"status"`
	Error            string         `db:"error" json:"error,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

type TransfersRepository interface {
	Insert(ctx context.Context, rec TransferRecord) error
	Recent(ctx context.Context, limit int) ([]TransferRecord, error)
}

type TransfersRepositoryImpl struct {
	db *sqlx.DB
}

func NewTransfersRepository(db *sqlx.DB) *TransfersRepositoryImpl {
	return &TransfersRepositoryImpl{db: db}
}

var _ TransfersRepository = (*TransfersRepositoryImpl)(nil)

func (r *TransfersRepositoryImpl) Insert(ctx context.Context, rec TransferRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO transfer_log
		    (id, source_account_sid, target_account_sid, phone_number_sid,
		     phone_number, bundle_sid, address_sid, status, error, created_at)
		VALUES
		    (:id, :source_account_sid, :target_account_sid, :phone_number_sid,
		     :phone_number, :bundle_sid, :address_sid, :status, :error, :created_at)
	`, rec)
	return err
}

func (r *TransfersRepositoryImpl) Recent(ctx context.Context, limit int) ([]TransferRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	recs := []TransferRecord{}
	err := r.db.SelectContext(ctx, &recs, `
		SELECT id, source_account_sid, target_account_sid, phone_number_sid,
		       phone_number, bundle_sid, address_sid, status, error, created_at
		  FROM transfer_log
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return recs, nil
}
