package discovery

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pgrepo "github.com/holehole5566/connecthub/internal/repo/postgres"
)

type fakeUsers struct {
	users map[int64]pgrepo.UserRecord
	err   error
}

func (f *fakeUsers) GetByID(_ context.Context, userID int64) (pgrepo.UserRecord, error) {
	if f.err != nil {
		return pgrepo.UserRecord{}, f.err
	}
	u, ok := f.users[userID]
	if !ok {
		return pgrepo.UserRecord{}, pgrepo.ErrUserNotFound
	}
	return u, nil
}

// fakeCandidates mirrors the SQL prefilter: exclusions, age range and bounding box.
type fakeCandidates struct {
	users     []pgrepo.UserRecord
	excluded  map[int64]map[int64]bool
	lastQuery pgrepo.CandidateQuery
}

func (f *fakeCandidates) ListCandidates(_ context.Context, q pgrepo.CandidateQuery) ([]pgrepo.UserRecord, error) {
	f.lastQuery = q
	out := make([]pgrepo.UserRecord, 0)
	for _, u := range f.users {
		if u.ID == q.RequesterID || f.excluded[q.RequesterID][u.ID] {
			continue
		}
		if u.Age < q.AgeMin || u.Age > q.AgeMax || u.Latitude == nil || u.Longitude == nil {
			continue
		}
		if *u.Latitude < q.Bound.Min.Lat() || *u.Latitude > q.Bound.Max.Lat() {
			continue
		}
		if q.FilterLongitude && !q.Bound.Contains(orb.Point{*u.Longitude, *u.Latitude}) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

type fakeSigner struct{}

func (fakeSigner) PhotoURL(_ context.Context, key string) (string, error) {
	return "https://cdn.test/" + key, nil
}

func located(id int64, age int, lat, lon float64) pgrepo.UserRecord {
	return pgrepo.UserRecord{ID: id, Username: "u", Age: age, Latitude: &lat, Longitude: &lon}
}

func defaultFilters() Filters {
	return Filters{AgeMin: 18, AgeMax: 35, MaxDistanceKM: 50, Limit: 10}
}

func newTestService(users *fakeUsers, candidates *fakeCandidates) *Service {
	return NewService(Dependencies{Users: users, Candidates: candidates}, Config{})
}

func TestHaversineProperties(t *testing.T) {
	assert.InDelta(t, 0, HaversineKM(40, -73, 40, -73), 1e-9)

	ab := HaversineKM(40.0, -73.0, 40.01, -73.01)
	ba := HaversineKM(40.01, -73.01, 40.0, -73.0)
	assert.InDelta(t, ab, ba, 1e-9)
	assert.InDelta(t, 1.4, ab, 0.05)

	// a quarter of the equator
	assert.InDelta(t, math.Pi*EarthRadiusKM/2, HaversineKM(0, 0, 0, 90), 1e-6)
}

func TestDiscoverIncludesNearbyCandidate(t *testing.T) {
	requester := located(1, 30, 40.0, -73.0)
	users := &fakeUsers{users: map[int64]pgrepo.UserRecord{1: requester}}
	candidates := &fakeCandidates{users: []pgrepo.UserRecord{requester, located(2, 28, 40.01, -73.01)}}
	svc := newTestService(users, candidates)

	items, err := svc.Discover(context.Background(), 1, defaultFilters())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].UserID)
	assert.InDelta(t, 1.4, items[0].DistanceKM, 0.05)

	filters := defaultFilters()
	filters.MaxDistanceKM = 1
	items, err = svc.Discover(context.Background(), 1, filters)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDiscoverOrdersByDistanceThenID(t *testing.T) {
	requester := located(1, 30, 40.0, -73.0)
	users := &fakeUsers{users: map[int64]pgrepo.UserRecord{1: requester}}
	candidates := &fakeCandidates{users: []pgrepo.UserRecord{
		located(9, 25, 40.2, -73.0),
		located(7, 25, 40.1, -73.0),
		located(5, 25, 40.1, -73.0),
		located(3, 25, 40.05, -73.0),
	}}
	svc := newTestService(users, candidates)

	filters := defaultFilters()
	filters.Limit = 3
	items, err := svc.Discover(context.Background(), 1, filters)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []int64{3, 5, 7}, []int64{items[0].UserID, items[1].UserID, items[2].UserID})
	for i := 1; i < len(items); i++ {
		assert.LessOrEqual(t, items[i-1].DistanceKM, items[i].DistanceKM)
	}
}

func TestDiscoverRespectsExclusionsAndRanges(t *testing.T) {
	requester := located(1, 30, 40.0, -73.0)
	users := &fakeUsers{users: map[int64]pgrepo.UserRecord{1: requester}}
	candidates := &fakeCandidates{
		users: []pgrepo.UserRecord{
			located(2, 25, 40.01, -73.0),
			located(3, 17, 40.01, -73.0),
			located(4, 40, 40.01, -73.0),
			located(5, 25, 40.01, -73.0),
			located(6, 25, 45.0, -73.0),
			{ID: 8, Age: 25},
		},
		excluded: map[int64]map[int64]bool{1: {5: true}},
	}
	svc := newTestService(users, candidates)

	items, err := svc.Discover(context.Background(), 1, defaultFilters())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].UserID)
	for _, item := range items {
		assert.NotEqual(t, int64(1), item.UserID)
		assert.GreaterOrEqual(t, item.Age, 18)
		assert.LessOrEqual(t, item.Age, 35)
		assert.LessOrEqual(t, item.DistanceKM, 50.0)
	}
	assert.True(t, candidates.lastQuery.FilterLongitude)
}

func TestDiscoverRequiresLocation(t *testing.T) {
	users := &fakeUsers{users: map[int64]pgrepo.UserRecord{1: {ID: 1, Age: 30}}}
	svc := newTestService(users, &fakeCandidates{})

	_, err := svc.Discover(context.Background(), 1, defaultFilters())
	assert.ErrorIs(t, err, ErrLocationRequired)

	_, err = svc.Discover(context.Background(), 2, defaultFilters())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiscoverValidatesFilters(t *testing.T) {
	requester := located(1, 30, 40.0, -73.0)
	svc := newTestService(&fakeUsers{users: map[int64]pgrepo.UserRecord{1: requester}}, &fakeCandidates{})

	cases := []Filters{
		{AgeMin: 17, AgeMax: 35, MaxDistanceKM: 50, Limit: 10},
		{AgeMin: 30, AgeMax: 20, MaxDistanceKM: 50, Limit: 10},
		{AgeMin: 18, AgeMax: 101, MaxDistanceKM: 50, Limit: 10},
		{AgeMin: 18, AgeMax: 35, MaxDistanceKM: 0, Limit: 10},
		{AgeMin: 18, AgeMax: 35, MaxDistanceKM: 101, Limit: 10},
		{AgeMin: 18, AgeMax: 35, MaxDistanceKM: 50, Limit: 0},
		{AgeMin: 18, AgeMax: 35, MaxDistanceKM: 50, Limit: 51},
	}
	for _, filters := range cases {
		_, err := svc.Discover(context.Background(), 1, filters)
		assert.ErrorIs(t, err, ErrValidation, "filters %+v", filters)
	}
}

func TestDiscoverPropagatesStoreErrors(t *testing.T) {
	storeErr := errors.New("db down")
	svc := newTestService(&fakeUsers{err: storeErr}, &fakeCandidates{})

	_, err := svc.Discover(context.Background(), 1, defaultFilters())
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestDiscoverAttachesPhotoURL(t *testing.T) {
	requester := located(1, 30, 40.0, -73.0)
	withPhoto := located(2, 25, 40.01, -73.0)
	withPhoto.Photos = []string{"users/2/a.jpg", "users/2/b.jpg"}
	svc := NewService(Dependencies{
		Users:      &fakeUsers{users: map[int64]pgrepo.UserRecord{1: requester}},
		Candidates: &fakeCandidates{users: []pgrepo.UserRecord{withPhoto, located(3, 25, 40.02, -73.0)}},
		Photos:     fakeSigner{},
	}, Config{})

	items, err := svc.Discover(context.Background(), 1, defaultFilters())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "https://cdn.test/users/2/a.jpg", items[0].PhotoURL)
	assert.Empty(t, items[1].PhotoURL)
}

func TestSearchBoundCoversRadius(t *testing.T) {
	center := orb.Point{-73.0, 40.0}
	bound, filterLon := searchBound(center, 50)
	require.True(t, filterLon)

	// points exactly 50 km away along each axis stay inside the box
	north := orb.Point{-73.0, 40.0 + 50/EarthRadiusKM*180/math.Pi}
	east := orb.Point{-73.0 + 50/(EarthRadiusKM*math.Cos(40*math.Pi/180))*180/math.Pi, 40.0}
	assert.True(t, bound.Contains(north))
	assert.True(t, bound.Contains(east))

	_, filterLon = searchBound(orb.Point{179.9, 10}, 50)
	assert.False(t, filterLon)
	_, filterLon = searchBound(orb.Point{0, 89.9}, 50)
	assert.False(t, filterLon)
}
