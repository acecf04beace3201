package roblox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSource scripts the three pipeline steps.
type fakeSource struct {
	universeID  int64
	universeErr error
	visits      int64
	visitsErr   error
	players     int64
	servers     int
	playersErr  error
}

func (f *fakeSource) ResolveUniverse(ctx context.Context, placeID string) (int64, error) {
	return f.universeID, f.universeErr
}

func (f *fakeSource) FetchVisits(ctx context.Context, universeID int64) (int64, error) {
	return f.visits, f.visitsErr
}

func (f *fakeSource) CountPlayers(ctx context.Context, placeID string) (int64, int, error) {
	return f.players, f.servers, f.playersErr
}

func fixedRand(value int64) func(lo, hi int64) int64 {
	return func(lo, hi int64) int64 { return value }
}

func TestGameClientHappyPath(t *testing.T) {
	client := &GameClient{
		Source: &fakeSource{universeID: 777, visits: 3400, players: 12, servers: 2},
		Clock:  func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}

	reading := client.Fetch(context.Background(), "12345")
	require.Equal(t, int64(12), reading.PlayerCount)
	require.Equal(t, int64(3400), reading.VisitCount)
	require.False(t, reading.Synthetic)
	require.NotEmpty(t, reading.UpdateID)
	require.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), reading.ObtainedAt)
	require.Equal(t, int64(3400), client.Watermark())
}

func TestGameClientUniverseFailureFallsBack(t *testing.T) {
	client := &GameClient{
		Source:  &fakeSource{universeErr: errors.New("resolve failed")},
		RandInt: fixedRand(3300),
	}

	reading := client.Fetch(context.Background(), "12345")
	require.True(t, reading.Synthetic)
	require.Equal(t, int64(3300), reading.VisitCount)
	require.Equal(t, int64(3300), reading.PlayerCount)
	// Fabricated visits never advance the watermark.
	require.Zero(t, client.Watermark())
}

func TestGameClientFallbackRespectsWatermark(t *testing.T) {
	source := &fakeSource{universeID: 777, visits: 5000, players: 3, servers: 1}
	client := &GameClient{Source: source, RandInt: fixedRand(3300)}

	_ = client.Fetch(context.Background(), "12345")
	require.Equal(t, int64(5000), client.Watermark())

	// A full fallback reading reports the watermark, not a lower
	// fabricated figure.
	source.universeErr = errors.New("resolve failed")
	reading := client.Fetch(context.Background(), "12345")
	require.True(t, reading.Synthetic)
	require.Equal(t, int64(5000), reading.VisitCount)
}

func TestGameClientVisitFailureKeepsWatermark(t *testing.T) {
	source := &fakeSource{universeID: 777, visits: 3400, players: 8, servers: 1}
	client := &GameClient{Source: source}

	_ = client.Fetch(context.Background(), "12345")

	source.visitsErr = errors.New("quota exhausted")
	reading := client.Fetch(context.Background(), "12345")
	require.True(t, reading.Synthetic)
	require.Equal(t, int64(3400), reading.VisitCount)
	require.Equal(t, int64(8), reading.PlayerCount)
}

func TestGameClientLowerVisitReadingDiscarded(t *testing.T) {
	source := &fakeSource{universeID: 777, visits: 3400, players: 8, servers: 1}
	client := &GameClient{Source: source}

	_ = client.Fetch(context.Background(), "12345")

	// The upstream is noisy; a lower fresh reading loses to the watermark.
	source.visits = 3100
	reading := client.Fetch(context.Background(), "12345")
	require.Equal(t, int64(3400), reading.VisitCount)
	require.False(t, reading.Synthetic)
	require.Equal(t, int64(3400), client.Watermark())
}

func TestGameClientZeroServersGetsPlaceholder(t *testing.T) {
	client := &GameClient{
		Source:  &fakeSource{universeID: 777, visits: 3400, servers: 0},
		RandInt: fixedRand(17),
	}

	reading := client.Fetch(context.Background(), "12345")
	require.True(t, reading.Synthetic)
	require.Equal(t, int64(17), reading.PlayerCount)
	require.Equal(t, int64(3400), reading.VisitCount)
}

func TestGameClientPlayerStepFailureGetsPlaceholder(t *testing.T) {
	client := &GameClient{
		Source: &fakeSource{
			universeID: 777,
			visits:     3400,
			playersErr: errors.New("server list unavailable"),
		},
		RandInt: fixedRand(22),
	}

	reading := client.Fetch(context.Background(), "12345")
	require.True(t, reading.Synthetic)
	require.Equal(t, int64(22), reading.PlayerCount)
}

func TestGameClientPlaceholderRanges(t *testing.T) {
	// With the real RNG the placeholder stays inside its documented range.
	client := &GameClient{
		Source: &fakeSource{universeErr: errors.New("down")},
	}

	for i := 0; i < 50; i++ {
		reading := client.Fetch(context.Background(), "12345")
		require.GreaterOrEqual(t, reading.PlayerCount, int64(8))
		require.LessOrEqual(t, reading.PlayerCount, int64(30))
		require.GreaterOrEqual(t, reading.VisitCount, int64(3200))
		require.LessOrEqual(t, reading.VisitCount, int64(3400))
	}
}

func TestGameClientWatermarkMonotonicAcrossNoise(t *testing.T) {
	source := &fakeSource{universeID: 777, players: 1, servers: 1}
	client := &GameClient{Source: source}

	var last int64
	for _, visits := range []int64{100, 250, 200, 50, 300, 299} {
		source.visits = visits
		reading := client.Fetch(context.Background(), "12345")
		require.GreaterOrEqual(t, reading.VisitCount, last)
		last = reading.VisitCount
	}
	require.Equal(t, int64(300), client.Watermark())
}
