package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"math"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	windowRows     []TimelineRow
	allRows        []TimelineRow
	lastWindowCall WindowParams
	lastAllCall    FilterParams
	lastAllLimit   int32
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error) {
	s.lastWindowCall = arg
	return s.windowRows, nil
}

func (s *stubTimelineRepo) TimelineAll(ctx context.Context, arg FilterParams, limit int32) ([]TimelineRow, error) {
	s.lastAllCall = arg
	s.lastAllLimit = limit
	return s.allRows, nil
}

func row(id int64, at, action, lineID string) TimelineRow {
	ts, _ := time.Parse(time.RFC3339, at)
	return TimelineRow{ID: id, At: ts, ActorID: 7, Action: action, Entity: EntityLine, EntityID: lineID}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{windowRows: []TimelineRow{
		row(3, "2026-03-10T10:00:00Z", "RECEIVING_RECORD", "ACME_0000001"),
		row(2, "2026-03-09T09:00:00Z", "LINE_CONFIG_UPDATE", "ACME_0000001"),
		row(1, "2026-03-08T08:00:00Z", "LINE_CREATE", "ACME_0000001"),
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EntityID: " ACME_0000001 ",
		ActorID:  7,
		Page:     2,
		PageSize: 2,
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.Equal(t, PagingInfo{Page: 2, PageSize: 2, HasNext: true, PrevPage: 1, NextPage: 3}, result.Paging)
	require.EqualValues(t, 3, repo.lastWindowCall.LimitRows)
	require.EqualValues(t, 2, repo.lastWindowCall.OffsetRows)
	require.Equal(t, pgtype.Text{String: "ACME_0000001", Valid: true}, repo.lastWindowCall.EntityID)
	require.Equal(t, pgtype.Int8{Int64: 7, Valid: true}, repo.lastWindowCall.Actor)
	require.False(t, repo.lastWindowCall.ToAt.Valid)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	result, err := NewService(repo).Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, maxPageSize, result.Paging.PageSize)
	require.EqualValues(t, maxPageSize+1, repo.lastWindowCall.LimitRows)
	require.NotNil(t, result.Rows)
	require.False(t, result.Paging.HasNext)

	_, err = NewService(nil).Timeline(context.Background(), TimelineFilters{})
	require.Error(t, err)
}

func TestServiceExportReturnsAllRows(t *testing.T) {
	repo := &stubTimelineRepo{allRows: []TimelineRow{
		row(2, "2026-03-10T10:00:00Z", "RECEIVING_RECORD", "ACME_0000001"),
		row(1, "2026-03-09T09:00:00Z", "LINE_CREATE", "ACME_0000002"),
	}}
	rows, err := NewService(repo).Export(context.Background(), TimelineFilters{From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, pgtype.Text{}, repo.lastAllCall.Action)
	require.EqualValues(t, MaxExportRows, repo.lastAllLimit)
}

func TestWriteCSV(t *testing.T) {
	r := row(9, "2026-03-10T10:00:00Z", "RECEIVING_RECORD", "ACME_0000001")
	r.Meta = map[string]any{"good": 3, "note": "torn, wet"}
	body, err := WriteCSV([]TimelineRow{r, row(8, "2026-03-09T09:00:00Z", "LINE_CREATE", "ACME_0000001")})
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, csvHeader, records[0])
	require.Equal(t, []string{"9", "2026-03-10T10:00:00Z", "7", "RECEIVING_RECORD", EntityLine, "ACME_0000001", `{"good":3,"note":"torn, wet"}`}, records[1])
	require.Equal(t, "", records[2][6])
}

func TestServiceTimelineClampsOffsetToInt32(t *testing.T) {
	repo := &stubTimelineRepo{}
	result, err := NewService(repo).Timeline(context.Background(), TimelineFilters{Page: 50_000_000, PageSize: 50})
	require.NoError(t, err)
	require.Equal(t, MaxPage, result.Paging.Page)
	require.Positive(t, repo.lastWindowCall.OffsetRows)
	require.LessOrEqual(t, int64(repo.lastWindowCall.OffsetRows)+int64(repo.lastWindowCall.LimitRows), int64(math.MaxInt32))
}
