package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/noticewatch/internal/enrich"
	"github.com/JakeFAU/noticewatch/internal/geocode"
	"github.com/JakeFAU/noticewatch/internal/notice"
)

type stubResolver struct {
	rec   notice.CoordinateRecord
	err   error
	calls int
}

func (s *stubResolver) Resolve(context.Context, string, string) (notice.CoordinateRecord, error) {
	s.calls++
	return s.rec, s.err
}

type stubEnricher struct {
	res   enrich.Result
	err   error
	calls []string
}

func (s *stubEnricher) Enrich(_ context.Context, noticeID, pblancNo, detailURL string) (enrich.Result, error) {
	s.calls = append(s.calls, noticeID+"|"+pblancNo+"|"+detailURL)
	return s.res, s.err
}

var event = notice.NoticeEvent{NoticeID: "2025000450", Region: "서울특별시 서초구", Title: "래미안", URL: "https://detail"}

func TestProcessRunsBothStages(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{rec: notice.Found(notice.Coordinates{X: 1, Y: 2}, "q")}
	enricher := &stubEnricher{res: enrich.Result{Status: enrich.StatusEnriched}}
	report := New(resolver, enricher, nil).Process(context.Background(), event)

	require.Equal(t, StatusOK, report.Geocode.Status)
	require.Equal(t, StatusOK, report.Enrich.Status)
	require.Equal(t, []string{"2025000450|2025000450|https://detail"}, enricher.calls)
}

func TestGeocodeFailureSkipsEnrichment(t *testing.T) {
	t.Parallel()

	for _, err := range []error{
		notice.Permanent("resolve", errors.New("geocoder is not configured")),
		notice.Transient("apply coordinates", errors.New("db down")),
		errors.New("unclassified"),
	} {
		resolver := &stubResolver{err: err}
		enricher := &stubEnricher{}
		report := New(resolver, enricher, nil).Process(context.Background(), event)

		require.Equal(t, StatusFailed, report.Geocode.Status)
		require.Equal(t, StatusSkipped, report.Enrich.Status)
		require.Empty(t, enricher.calls)

		var se *notice.StageError
		require.ErrorAs(t, report.Geocode.Err, &se)
		require.Equal(t, notice.StageGeocode, se.Stage)
		require.ErrorIs(t, report.Geocode.Err, err)
	}
}

type deniedGeocoder struct{ calls int }

func (g *deniedGeocoder) Geocode(context.Context, string) (notice.Coordinates, bool, error) {
	g.calls++
	return notice.Coordinates{}, false, notice.Permanent("geocode", errors.New("status 401"))
}

type untouchedStore struct {
	notice.NoticeStore
	applied int
}

func (s *untouchedStore) ApplyCoordinates(context.Context, string, notice.CoordinateRecord) error {
	s.applied++
	return nil
}

func TestGeocoderAuthFailureSkipsEnrichment(t *testing.T) {
	t.Parallel()

	g := &deniedGeocoder{}
	store := &untouchedStore{}
	resolver := geocode.NewResolver(g, store, geocode.DefaultConfig(), nil,
		geocode.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	enricher := &stubEnricher{}

	report := New(resolver, enricher, nil).Process(context.Background(), event)

	require.Equal(t, StatusFailed, report.Geocode.Status)
	require.Equal(t, StatusSkipped, report.Enrich.Status)
	require.Equal(t, notice.KindPermanent, notice.KindOf(report.Geocode.Err))
	require.Empty(t, enricher.calls)
	require.Equal(t, 1, g.calls)
	require.Zero(t, store.applied)
}

func TestNotFoundStillEnriches(t *testing.T) {
	t.Parallel()

	enricher := &stubEnricher{res: enrich.Result{Status: enrich.StatusNoPDF}}
	report := New(&stubResolver{rec: notice.NotFound()}, enricher, nil).Process(context.Background(), event)

	require.Equal(t, StatusNotFound, report.Geocode.Status)
	require.Equal(t, StatusNoPDF, report.Enrich.Status)
	require.Len(t, enricher.calls, 1)
}

func TestEnrichFailureIsReported(t *testing.T) {
	t.Parallel()

	boom := notice.Permanent("parse model reply", errors.New("bad json"))
	report := New(&stubResolver{rec: notice.NotFound()}, &stubEnricher{err: boom}, nil).Process(context.Background(), event)

	require.Equal(t, StatusFailed, report.Enrich.Status)
	require.Equal(t, notice.KindPermanent, notice.KindOf(report.Enrich.Err))
}

func TestHandleEventNeverPanicsOnFailure(t *testing.T) {
	t.Parallel()

	p := New(&stubResolver{err: errors.New("x")}, &stubEnricher{}, nil)
	require.NotPanics(t, func() { p.HandleEvent(context.Background(), event) })
}
