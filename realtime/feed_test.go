package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

func marshalFeed(t *testing.T, fm *gtfsrtpb.FeedMessage) []byte {
	t.Helper()
	b, err := proto.Marshal(fm)
	require.NoError(t, err)
	return b
}

func tripUpdatesFeed(t *testing.T, tripID, stopID string, arrival int64) *gtfsrtpb.FeedMessage {
	t.Helper()
	return &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: []*gtfsrtpb.FeedEntity{{
			Id: proto.String("e1"),
			TripUpdate: &gtfsrtpb.TripUpdate{
				Trip: &gtfsrtpb.TripDescriptor{TripId: proto.String(tripID)},
				StopTimeUpdate: []*gtfsrtpb.TripUpdate_StopTimeUpdate{{
					StopId:  proto.String(stopID),
					Arrival: &gtfsrtpb.TripUpdate_StopTimeEvent{Time: proto.Int64(arrival)},
				}},
			},
		}},
	}
}

func TestEnsureFreshFetchesOncePerWindow(t *testing.T) {
	var fetches atomic.Int32
	payload := marshalFeed(t, tripUpdatesFeed(t, "T1", "S1", 1700000000))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	fc := NewFeedCache(FeedURLs{TripUpdates: srv.URL}, time.Hour, time.Second, zap.NewNop())
	ctx := context.Background()

	first := fc.EnsureFresh(ctx)
	second := fc.EnsureFresh(ctx)

	assert.Equal(t, int32(1), fetches.Load(), "second call within the window is served from the snapshot")
	assert.Same(t, first, second)
	require.NotNil(t, first.TripUpdates)

	preds := first.ArrivalPredictions()
	assert.Equal(t, int64(1700000000), preds["T1"]["S1"])
}

func TestEnsureFreshKeepsLastGoodValueOnFailure(t *testing.T) {
	var fail atomic.Bool
	payload := marshalFeed(t, tripUpdatesFeed(t, "T1", "S1", 1700000000))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	var failures []string
	fc := NewFeedCache(FeedURLs{TripUpdates: srv.URL}, 0, time.Second, zap.NewNop())
	fc.SetErrorHook(func(channel string) { failures = append(failures, channel) })
	ctx := context.Background()

	good := fc.EnsureFresh(ctx)
	require.NotNil(t, good.TripUpdates)

	fail.Store(true)
	time.Sleep(time.Millisecond)
	degraded := fc.EnsureFresh(ctx)

	assert.NotNil(t, degraded.TripUpdates, "failed fetch keeps the previous value")
	assert.Same(t, good.TripUpdates, degraded.TripUpdates)
	assert.Equal(t, []string{"trip_updates"}, failures)
}

func TestEnsureFreshToleratesUndecodablePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not a protobuf"))
	}))
	defer srv.Close()

	fc := NewFeedCache(FeedURLs{Alerts: srv.URL}, time.Hour, time.Second, zap.NewNop())
	snap := fc.EnsureFresh(context.Background())
	require.NotNil(t, snap)
	assert.Nil(t, snap.Alerts)
}

func TestSnapshotAccessorsAreNilSafe(t *testing.T) {
	var snap *Snapshot
	assert.Empty(t, snap.ArrivalPredictions())
	assert.Empty(t, snap.VehicleByTrip())

	empty := &Snapshot{}
	assert.Empty(t, empty.ArrivalPredictions())
	assert.Empty(t, empty.VehicleByTrip())
}

func TestCurrentDoesNotTriggerRefresh(t *testing.T) {
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
	}))
	defer srv.Close()

	fc := NewFeedCache(FeedURLs{TripUpdates: srv.URL}, time.Hour, time.Second, zap.NewNop())
	assert.Nil(t, fc.Current())
	assert.Equal(t, int32(0), fetches.Load())
}
