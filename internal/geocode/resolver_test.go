package geocode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/noticewatch/internal/notice"
)

type geocodeReply struct {
	coords notice.Coordinates
	found  bool
	err    error
}

type scriptedGeocoder struct {
	mu      sync.Mutex
	replies map[string][]geocodeReply
	calls   []string
}

func (g *scriptedGeocoder) Geocode(_ context.Context, query string) (notice.Coordinates, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, query)
	queue := g.replies[query]
	if len(queue) == 0 {
		return notice.Coordinates{}, false, nil
	}
	r := queue[0]
	if len(queue) > 1 {
		g.replies[query] = queue[1:]
	}
	return r.coords, r.found, r.err
}

type coordStore struct {
	notice.NoticeStore
	mu      sync.Mutex
	applied map[string]notice.CoordinateRecord
	err     error
}

func (s *coordStore) ApplyCoordinates(_ context.Context, id string, rec notice.CoordinateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.applied == nil {
		s.applied = map[string]notice.CoordinateRecord{}
	}
	s.applied[id] = rec
	return nil
}

type sleepLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepLog) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

func newTestResolver(g notice.Geocoder, store notice.NoticeStore, sl *sleepLog) *Resolver {
	return NewResolver(g, store, DefaultConfig(), zap.NewNop(), WithSleeper(sl.sleep))
}

func TestResolveStopsAtFirstHit(t *testing.T) {
	t.Parallel()

	g := &scriptedGeocoder{replies: map[string][]geocodeReply{
		"서울특별시 강남구 개포동 12": {{coords: notice.Coordinates{X: 127.05, Y: 37.48}, found: true}},
	}}
	store := &coordStore{}
	sl := &sleepLog{}

	rec, err := newTestResolver(g, store, sl).Resolve(context.Background(), "2025000450", "서울특별시 강남구 개포동 12 일원")
	require.NoError(t, err)

	require.Equal(t, notice.GeocodeOK, rec.Status)
	require.InDelta(t, 127.05, *rec.X, 1e-9)
	require.InDelta(t, 37.48, *rec.Y, 1e-9)
	require.Equal(t, []string{"서울특별시 강남구 개포동 12 일원", "서울특별시 강남구 개포동 12"}, g.calls)
	require.Equal(t, []time.Duration{200 * time.Millisecond}, sl.waits)
	require.Equal(t, rec, store.applied["2025000450"])
}

func TestResolveFirstCandidateHitMakesNoMoreCalls(t *testing.T) {
	t.Parallel()

	g := &scriptedGeocoder{replies: map[string][]geocodeReply{
		"경기도 하남시 교산동 (교산지구) 일원": {{coords: notice.Coordinates{X: 1, Y: 2}, found: true}},
	}}
	rec, err := newTestResolver(g, &coordStore{}, &sleepLog{}).
		Resolve(context.Background(), "n", "경기도 하남시 교산동 (교산지구) 일원")
	require.NoError(t, err)
	require.Equal(t, notice.GeocodeOK, rec.Status)
	require.Len(t, g.calls, 1)
}

func TestResolveRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	g := &scriptedGeocoder{replies: map[string][]geocodeReply{
		"서울 송파구": {
			{err: notice.Transient("geocode request", errors.New("timeout"))},
			{err: notice.Transient("geocode request", errors.New("timeout"))},
			{coords: notice.Coordinates{X: 1, Y: 2}, found: true},
		},
	}}
	sl := &sleepLog{}
	rec, err := newTestResolver(g, &coordStore{}, sl).Resolve(context.Background(), "n", "서울 송파구")
	require.NoError(t, err)
	require.Equal(t, notice.GeocodeOK, rec.Status)
	require.Len(t, g.calls, 3)
	require.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, sl.waits)
}

func TestResolveExhaustedIsNotFound(t *testing.T) {
	t.Parallel()

	transient := geocodeReply{err: notice.Transient("geocode request", errors.New("reset"))}
	g := &scriptedGeocoder{replies: map[string][]geocodeReply{
		"부산 기장군 1 일원": {transient},
	}}
	store := &coordStore{}
	sl := &sleepLog{}

	rec, err := newTestResolver(g, store, sl).Resolve(context.Background(), "n-9", "부산 기장군 1 일원")
	require.NoError(t, err)
	require.Equal(t, notice.GeocodeNotFound, rec.Status)
	require.Nil(t, rec.X)
	require.Nil(t, rec.Y)
	// three attempts on the failing candidate, one miss on the stripped one
	require.Len(t, g.calls, 4)
	require.Equal(t, notice.GeocodeNotFound, store.applied["n-9"].Status)
}

func TestResolvePermanentErrorAbortsWithoutApplying(t *testing.T) {
	t.Parallel()

	denied := geocodeReply{err: notice.Permanent("geocode", errors.New("status 401"))}
	g := &scriptedGeocoder{replies: map[string][]geocodeReply{
		"부산 기장군 1 일원": {denied},
		"부산 기장군 1":    {denied},
	}}
	store := &coordStore{}
	sl := &sleepLog{}

	_, err := newTestResolver(g, store, sl).Resolve(context.Background(), "n-9", "부산 기장군 1 일원")
	require.Error(t, err)
	require.Equal(t, notice.KindPermanent, notice.KindOf(err))
	require.ErrorContains(t, err, "status 401")
	// not retried, and the remaining candidates are not tried
	require.Equal(t, []string{"부산 기장군 1 일원"}, g.calls)
	require.Empty(t, store.applied)
}

func TestResolveRequiresInputs(t *testing.T) {
	t.Parallel()

	r := newTestResolver(&scriptedGeocoder{}, &coordStore{}, &sleepLog{})
	_, err := r.Resolve(context.Background(), "", "서울")
	require.Equal(t, notice.KindPermanent, notice.KindOf(err))
	_, err = r.Resolve(context.Background(), "n", " ")
	require.Equal(t, notice.KindPermanent, notice.KindOf(err))

	noGeo := NewResolver(nil, &coordStore{}, DefaultConfig(), nil)
	_, err = noGeo.Resolve(context.Background(), "n", "서울")
	require.Equal(t, notice.KindPermanent, notice.KindOf(err))
}

func TestResolveSurfacesStoreFailure(t *testing.T) {
	t.Parallel()

	store := &coordStore{err: errors.New("no such notice")}
	_, err := newTestResolver(&scriptedGeocoder{}, store, &sleepLog{}).Resolve(context.Background(), "n", "서울")
	require.ErrorContains(t, err, "apply coordinates")
}
