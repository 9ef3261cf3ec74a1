package persistence

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	repoAssetID = "0b7f3c1e-2a56-4d1f-9d4e-1f2a3b4c5d6e"
	otherID     = "7c1d2e3f-4a5b-4c6d-8e9f-0a1b2c3d4e5f"
)

var repoNow = time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC)

func newMockRepo(t *testing.T) (*PostgresAssetRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresAssetRepository(db, time.Second), mock
}

func strPtr(s string) *string { return &s }

func editedAsset() *domain.Asset {
	return &domain.Asset{
		ID:        repoAssetID,
		Kind:      domain.AssetKindMixer,
		Fields:    map[string]string{"assigned_operator": "E123"},
		CreatedAt: repoNow.Add(-time.Hour),
		UpdatedAt: repoNow,
	}
}

func editChanges() []domain.ChangeRecord {
	return []domain.ChangeRecord{
		{EntityID: repoAssetID, FieldName: "assigned_operator", OldValue: strPtr("0"), NewValue: strPtr("E123"), ChangedAt: repoNow, ChangedBy: "u1"},
		{EntityID: repoAssetID, FieldName: "status", OldValue: strPtr("Active"), NewValue: strPtr("Down"), ChangedAt: repoNow, ChangedBy: "u1"},
	}
}

func TestUpdateWithHistory_GuardedUpdateAndChangeRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	expected := repoNow.Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND kind = $2 AND updated_at = $5")).
		WithArgs(repoAssetID, "mixer", sqlmock.AnyArg(), repoNow, expected).
		WillReturnResult(sqlmock.NewResult(0, 1))
	insert := mock.ExpectPrepare("INSERT INTO asset_changes")
	insert.ExpectExec().
		WithArgs(sqlmock.AnyArg(), repoAssetID, "assigned_operator", "0", "E123", repoNow, "u1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	insert.ExpectExec().
		WithArgs(sqlmock.AnyArg(), repoAssetID, "status", "Active", "Down", repoNow, "u1").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	changes := editChanges()
	err := repo.UpdateWithHistory(context.Background(), editedAsset(), expected, changes)

	require.NoError(t, err)
	assert.NotEmpty(t, changes[0].ID)
	assert.NotEqual(t, changes[0].ID, changes[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWithHistory_StaleUpdatedAtIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE assets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(repoAssetID, "mixer").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.UpdateWithHistory(context.Background(), editedAsset(), repoNow.Add(-time.Hour), editChanges())

	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWithHistory_MissingAssetIsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE assets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(repoAssetID, "mixer").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.UpdateWithHistory(context.Background(), editedAsset(), repoNow.Add(-time.Hour), editChanges())

	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
	assert.False(t, errors.Is(err, domain.ErrConcurrentUpdate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWithHistory_RollsBackWhenInsertFails(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE assets").WillReturnResult(sqlmock.NewResult(0, 1))
	insert := mock.ExpectPrepare("INSERT INTO asset_changes")
	insert.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	insert.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.UpdateWithHistory(context.Background(), editedAsset(), repoNow.Add(-time.Hour), editChanges())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert change record")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_RemovesHistoryAndAssetInOneTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM asset_changes").
		WithArgs(repoAssetID, "tractor").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM assets").
		WithArgs(repoAssetID, "tractor").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), domain.AssetKindTractor, repoAssetID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_NotFoundRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM asset_changes").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM assets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), domain.AssetKindTractor, repoAssetID)

	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_InvalidIDSkipsDatabase(t *testing.T) {
	repo, mock := newMockRepo(t)

	err := repo.Delete(context.Background(), domain.AssetKindMixer, "not-a-uuid")

	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerify_LeavesUpdatedAtAlone(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE assets SET updated_last = $3, updated_by = $4 WHERE id = $1 AND kind = $2")).
		WithArgs(repoAssetID, "mixer", repoNow, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE assets").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Verify(context.Background(), domain.AssetKindMixer, repoAssetID, "u1", repoNow))
	err := repo.Verify(context.Background(), domain.AssetKindMixer, repoAssetID, "u1", repoNow)
	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByID_NoRowsIsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM assets WHERE id = \\$1 AND kind = \\$2").
		WithArgs(repoAssetID, "mixer").
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "fields", "created_at", "updated_at", "updated_last", "updated_by"}))

	_, err := repo.FindByID(context.Background(), domain.AssetKindMixer, repoAssetID)

	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByAsset_NewestFirstKeepingInsertionOrder(t *testing.T) {
	repo, mock := newMockRepo(t)
	older := repoNow.Add(-time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY changed_at DESC, seq ASC")).
		WithArgs(repoAssetID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "asset_id", "field_name", "old_value", "new_value", "changed_at", "changed_by"}).
			AddRow("c3", repoAssetID, "assigned_operator", "0", "E123", repoNow, "u1").
			AddRow("c4", repoAssetID, "status", nil, "Down", repoNow, "u1").
			AddRow("c1", repoAssetID, "status", "Active", nil, older, "u0"))

	records, err := repo.ListByAsset(context.Background(), repoAssetID)

	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"c3", "c4", "c1"}, []string{records[0].ID, records[1].ID, records[2].ID})
	assert.Nil(t, records[1].OldValue)
	assert.Nil(t, records[2].NewValue)
	require.NotNil(t, records[0].NewValue)
	assert.Equal(t, "E123", *records[0].NewValue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestChangeAt_SingleBatchQuery(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE asset_id = ANY($1::uuid[])")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"asset_id", "max"}).
			AddRow(repoAssetID, repoNow))

	latest, err := repo.LatestChangeAt(context.Background(), []string{repoAssetID, otherID, "bogus"})

	require.NoError(t, err)
	assert.Len(t, latest, 1)
	assert.True(t, latest[repoAssetID].Equal(repoNow))
	_, ok := latest[otherID]
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestChangeAt_NoValidIDsSkipsDatabase(t *testing.T) {
	repo, mock := newMockRepo(t)

	latest, err := repo.LatestChangeAt(context.Background(), []string{"bogus"})

	require.NoError(t, err)
	assert.Empty(t, latest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithQueryTimeout(t *testing.T) {
	ctx, cancel := withQueryTimeout(context.Background(), time.Second)
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 100*time.Millisecond)

	ctx, cancel = withQueryTimeout(context.Background(), 0)
	defer cancel()
	_, ok = ctx.Deadline()
	assert.False(t, ok)
}

func TestRepository_QueryTimeoutBoundsCalls(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresAssetRepository(db, 10*time.Millisecond)

	mock.ExpectQuery("SELECT COUNT").
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, err = repo.Count(context.Background(), domain.AssetKindMixer, domain.AssetFilter{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sqlmock.ErrCancelled), err.Error())
}
