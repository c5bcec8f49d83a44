package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestTransfersRepository_Recent(t *testing.T) {
	t.Run("should return an empty slice for an empty table", func(t *testing.T) {
		repo := NewTransfersRepository(setupTestDB(t))

		recs, err := repo.Recent(context.Background(), 10)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(recs) != 0 {
			t.Fatalf("\nwanted:\n0 records\ngot:\n%d", len(recs))
		}
	})

	t.Run("should return newest records first", func(t *testing.T) {
		repo := NewTransfersRepository(setupTestDB(t))
		ctx := context.Background()

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			rec := TransferRecord{
				ID:               fmt.Sprintf("01HTEST%d", i),
				SourceAccountSID: "ACsource",
				TargetAccountSID: "ACtarget",
				PhoneNumberSID:   fmt.Sprintf("PN%d", i),
				PhoneNumber:      fmt.Sprintf("+3310000000%d", i),
				Status:           TransferCompleted,
				CreatedAt:        base.Add(time.Duration(i) * time.Minute),
			}
			if err := repo.Insert(ctx, rec); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}

		recs, err := repo.Recent(ctx, 10)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(recs) != 3 {
			t.Fatalf("\nwanted:\n3 records\ngot:\n%d", len(recs))
		}
		if recs[0].PhoneNumberSID != "PN2" || recs[2].PhoneNumberSID != "PN0" {
			t.Fatalf("\nwanted:\nPN2 first, PN0 last\ngot:\n%s ... %s",
				recs[0].PhoneNumberSID, recs[2].PhoneNumberSID)
		}
	})

	t.Run("should honor the limit and clamp bad values", func(t *testing.T) {
		repo := NewTransfersRepository(setupTestDB(t))
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			rec := TransferRecord{
				ID:             fmt.Sprintf("01HTEST%d", i),
				PhoneNumberSID: fmt.Sprintf("PN%d", i),
				Status:         TransferFailed,
				Error:          "upstream said no",
			}
			if err := repo.Insert(ctx, rec); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}

		recs, err := repo.Recent(ctx, 2)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("\nwanted:\n2 records\ngot:\n%d", len(recs))
		}

		recs, err = repo.Recent(ctx, -1)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(recs) != 5 {
			t.Fatalf("\nwanted:\nall 5 records under the clamped default\ngot:\n%d", len(recs))
		}
	})
}

func TestTransfersRepository_Insert(t *testing.T) {
	t.Run("should default created_at and round-trip all fields", func(t *testing.T) {
		repo := NewTransfersRepository(setupTestDB(t))
		ctx := context.Background()

		rec := TransferRecord{
			ID:               "01HTESTROUNDTRIP",
			SourceAccountSID: "ACsource",
			TargetAccountSID: "ACtarget",
			PhoneNumberSID:   "PN1",
			PhoneNumber:      "+33100000001",
			BundleSID:        "BU1",
			AddressSID:       "AD1",
			Status:           TransferRecovered,
		}
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}

		recs, err := repo.Recent(ctx, 1)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		got := recs[0]
		if got.ID != rec.ID || got.BundleSID != "BU1" || got.AddressSID != "AD1" || got.Status != TransferRecovered {
			t.Fatalf("\nwanted:\n%+v\ngot:\n%+v", rec, got)
		}
		if got.CreatedAt.IsZero() {
			t.Fatalf("\nwanted:\ncreated_at populated\ngot:\nzero time")
		}
	})
}

func TestTransferStatus_Valid(t *testing.T) {
	t.Run("should accept known statuses only", func(t *testing.T) {
		for _, s := range []TransferStatus{TransferCompleted, TransferRecovered, TransferFailed} {
			if !s.Valid() {
				t.Fatalf("\nwanted:\n%s valid\ngot:\ninvalid", s)
			}
		}
		if TransferStatus("pending").Valid() {
			t.Fatalf("\nwanted:\npending invalid\ngot:\nvalid")
		}
	})
}
