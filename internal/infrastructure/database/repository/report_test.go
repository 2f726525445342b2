package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/domain/models"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	execs    []execCall
	execErr  error
	queryErr error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, f.queryErr
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func TestReportRepositoryInsert(t *testing.T) {
	db := &fakeDB{}
	repo := NewReportRepository(db)

	delivered := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	ev := models.NewEvidence()
	ev[models.EvidencePhoneNumbers] = []string{"9876543210"}
	rec := &models.ReportRecord{
		ID:         uuid.New(),
		Status:     models.DeliveryDelivered,
		Attempts:   2,
		StatusCode: 200,
		CreatedAt:  delivered.Add(-5 * time.Second),
		Report: models.Report{
			SessionID:                 "s-9",
			ScamDetected:              true,
			ExtractedIntelligence:     ev,
			TotalMessagesExchanged:    7,
			EngagementDurationSeconds: 140,
			ScamType:                  models.ScamBankFraud,
			ConfidenceLevel:           0.81,
		},
		DeliveredAt: &delivered,
	}

	require.NoError(t, repo.ObserveReport(context.Background(), rec))
	require.Len(t, db.execs, 1)

	args := db.execs[0].args
	require.Len(t, args, 13)
	assert.Equal(t, rec.ID, args[0])
	assert.Equal(t, "s-9", args[1])
	assert.Equal(t, "delivered", args[2])
	assert.Equal(t, 2, args[3])
	assert.Equal(t, 200, *args[4].(*int))
	assert.Nil(t, args[5].(*string))
	assert.Equal(t, "bank_fraud", args[6])
	assert.Equal(t, 0.81, args[7])

	var payload models.Report
	require.NoError(t, json.Unmarshal(args[10].([]byte), &payload))
	assert.Equal(t, []string{"9876543210"}, payload.ExtractedIntelligence[models.EvidencePhoneNumbers])
	assert.Equal(t, &delivered, args[12])
}

func TestReportRepositoryErrorsAreWrapped(t *testing.T) {
	boom := errors.New("connection refused")
	db := &fakeDB{execErr: boom, queryErr: boom}
	repo := NewReportRepository(db)

	err := repo.Insert(context.Background(), &models.ReportRecord{ID: uuid.New(), Status: models.DeliverySkipped})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "failed to insert report")

	_, err = repo.ListBySession(context.Background(), "s", 0)
	assert.ErrorIs(t, err, boom)

	_, err = repo.StatusCounts(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestNullableHelpers(t *testing.T) {
	assert.Nil(t, nullableInt(0))
	assert.Equal(t, 503, *nullableInt(503))
	assert.Nil(t, nullableString(""))
	assert.Equal(t, "x", *nullableString("x"))
}
