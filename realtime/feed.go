package realtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// FeedURLs addresses the three upstream channels. Any URL may be empty, in
// which case that channel is never fetched.
type FeedURLs struct {
	TripUpdates      string
	VehiclePositions string
	Alerts           string
}

// FeedCache refreshes the realtime snapshot at most once per refresh
// window. A single mutex guards both the staleness check and the refresh,
// so overlapping callers block until the in-flight refresh finishes
// instead of issuing duplicate upstream fetches.
type FeedCache struct {
	urls      FeedURLs
	window    time.Duration
	client    *http.Client
	logger    *zap.Logger
	clock     func() time.Time
	onError   func(channel string)
	onRefresh func(took time.Duration)

	mu          sync.Mutex
	snapshot    *Snapshot
	lastRefresh time.Time
}

// NewFeedCache creates a cache with a bounded-timeout HTTP client.
func NewFeedCache(urls FeedURLs, window, timeout time.Duration, logger *zap.Logger) *FeedCache {
	return &FeedCache{
		urls:   urls,
		window: window,
		client: &http.Client{Timeout: timeout},
		logger: logger,
		clock:  time.Now,
	}
}

// SetErrorHook registers a callback invoked once per failed channel fetch,
// with the channel name. Used to feed the metrics counters.
func (fc *FeedCache) SetErrorHook(hook func(channel string)) {
	fc.onError = hook
}

// SetRefreshHook registers a callback invoked after every completed
// refresh with its wall time.
func (fc *FeedCache) SetRefreshHook(hook func(took time.Duration)) {
	fc.onRefresh = hook
}

// EnsureFresh refreshes the snapshot if it is older than the refresh
// window and returns the current snapshot. A fetch failure on one channel
// leaves that channel at its last good value; the other channels still
// refresh. Never returns nil.
func (fc *FeedCache) EnsureFresh(ctx context.Context) *Snapshot {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	now := fc.clock()
	if fc.snapshot != nil && now.Sub(fc.lastRefresh) <= fc.window {
		return fc.snapshot
	}

	started := now
	next := &Snapshot{FetchedAt: now}
	if fc.snapshot != nil {
		// Carry last good values forward; a failed fetch must degrade
		// freshness, not availability.
		next.TripUpdates = fc.snapshot.TripUpdates
		next.VehiclePositions = fc.snapshot.VehiclePositions
		next.Alerts = fc.snapshot.Alerts
	}

	if fm, err := fc.fetchFeed(ctx, fc.urls.TripUpdates); err != nil {
		fc.fetchFailed("trip_updates", err)
	} else if fm != nil {
		next.TripUpdates = fm
	}
	if fm, err := fc.fetchFeed(ctx, fc.urls.VehiclePositions); err != nil {
		fc.fetchFailed("vehicle_positions", err)
	} else if fm != nil {
		next.VehiclePositions = fm
	}
	if fm, err := fc.fetchFeed(ctx, fc.urls.Alerts); err != nil {
		fc.fetchFailed("alerts", err)
	} else if fm != nil {
		next.Alerts = fm
	}

	fc.snapshot = next
	fc.lastRefresh = now
	took := fc.clock().Sub(started)
	if fc.onRefresh != nil {
		fc.onRefresh(took)
	}
	fc.logger.Debug("realtime snapshot refreshed", zap.Duration("took", took))
	return fc.snapshot
}

// Current returns the latest snapshot without triggering a refresh.
func (fc *FeedCache) Current() *Snapshot {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.snapshot
}

func (fc *FeedCache) fetchFailed(channel string, err error) {
	fc.logger.Warn("realtime fetch failed",
		zap.String("channel", channel), zap.Error(err))
	if fc.onError != nil {
		fc.onError(channel)
	}
}

func (fc *FeedCache) fetchFeed(ctx context.Context, url string) (*gtfsrtpb.FeedMessage, error) {
	if url == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := fc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var fm gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(b, &fm); err != nil {
		return nil, fmt.Errorf("decode feed message: %w", err)
	}
	return &fm, nil
}
