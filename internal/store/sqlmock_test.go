package store

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/raysh454/lotsync/internal/logging"
	"github.com/raysh454/lotsync/internal/model"
)

func newMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return &SQLiteStore{
		db:     db,
		logger: logging.NewWriterLogger("store-test", io.Discard, logging.LevelDebug),
		now:    func() time.Time { return time.Unix(1700000000, 0) },
	}, mock
}

func TestDeleteBatch_DependentFailureRollsBackOnlyThatVehicle(t *testing.T) {
	s, mock := newMockStore(t)
	dbErr := errors.New("disk I/O error")

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM vehicle_views").WithArgs("v1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM conversations").WithArgs("v1").WillReturnError(dbErr)
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM vehicle_views").WithArgs("v2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM conversations").WithArgs("v2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM vehicles").WithArgs("v2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := s.DeleteBatch(context.Background(), []string{"v1", "v2"})
	if err != nil {
		t.Fatalf("DeleteBatch: %v", err)
	}
	if len(res.Deleted) != 1 || res.Deleted[0] != "v2" {
		t.Errorf("expected v2 deleted, got %v", res.Deleted)
	}
	if !errors.Is(res.Failed["v1"], dbErr) {
		t.Errorf("expected v1 to fail with injected error, got %v", res.Failed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestDeleteBatch_CanceledContextStopsBatch(t *testing.T) {
	s, mock := newMockStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.DeleteBatch(ctx, []string{"v1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(res.Deleted) != 0 {
		t.Errorf("nothing should be deleted, got %v", res.Deleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database calls: %s", err)
	}
}

func TestUpdate_ExecErrorIsWrapped(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE vehicles SET").WillReturnError(errors.New("database is locked"))

	rec := model.VehicleRecord{ID: "v1", DealershipID: "d1"}
	err := s.Update(context.Background(), rec)
	if err == nil || !strings.Contains(err.Error(), "update vehicle v1") {
		t.Fatalf("expected wrapped update error, got %v", err)
	}
}

func TestSaveCheckpoint_ExecErrorIsWrapped(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO checkpoints").WillReturnError(errors.New("disk full"))

	err := s.SaveCheckpoint(context.Background(), model.Checkpoint{DealershipID: "d1", Resumable: true})
	if err == nil || !strings.Contains(err.Error(), "save checkpoint d1") {
		t.Fatalf("expected wrapped checkpoint error, got %v", err)
	}
}

func TestSaveCheckpoint_RequiresDealership(t *testing.T) {
	s, _ := newMockStore(t)
	if err := s.SaveCheckpoint(context.Background(), model.Checkpoint{}); err == nil {
		t.Fatal("expected error for empty dealership")
	}
}
