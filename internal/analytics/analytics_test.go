package analytics

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventCarriesDistinctID(t *testing.T) {
	ctx := WithDistinctID(context.Background(), "client-42")
	e := NewEvent(ctx, EventAnalysisComplete, Properties{"totalScore": 70})

	assert.Equal(t, EventAnalysisComplete, e.Name)
	assert.Equal(t, "client-42", e.DistinctID)
	assert.NotEmpty(t, e.InsertID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, 70, e.Properties["totalScore"])
}

func TestWithDistinctIDEmpty(t *testing.T) {
	ctx := WithDistinctID(context.Background(), "")
	assert.Empty(t, DistinctIDFromContext(ctx))
}

func TestTrackNilTracker(t *testing.T) {
	assert.NotPanics(t, func() {
		Track(context.Background(), nil, EventError, nil)
		TrackError(context.Background(), nil, errors.New("boom"), "")
	})
}

func TestTrackError(t *testing.T) {
	rec := NewRecorder()
	TrackError(context.Background(), rec, errors.New("upload failed"), "storage")
	TrackError(context.Background(), rec, nil, "ignored")

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Name)
	assert.Equal(t, "upload failed", events[0].Properties["message"])
	assert.Equal(t, "storage", events[0].Properties["context"])
	assert.NotEmpty(t, events[0].Properties["timestamp"])
}

func TestPublisherFanOut(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	p := NewPublisher(nil, a)
	p.Subscribe(b)

	Track(context.Background(), p, EventImageUploadSuccess, nil)
	p.Flush()

	assert.Equal(t, []string{EventImageUploadSuccess}, a.Names())
	assert.Equal(t, []string{EventImageUploadSuccess}, b.Names())
}

func TestPublisherRecoversFromPanic(t *testing.T) {
	rec := NewRecorder()
	p := NewPublisher(nil,
		TrackerFunc(func(context.Context, Event) { panic("broken tracker") }),
		rec,
	)

	assert.NotPanics(t, func() {
		Track(context.Background(), p, EventAnalysisSuccess, nil)
		p.Flush()
	})
	assert.Equal(t, []string{EventAnalysisSuccess}, rec.Names())
}

func TestPublisherDetachesCancellation(t *testing.T) {
	var sawCancel atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})

	p := NewPublisher(nil, TrackerFunc(func(ctx context.Context, _ Event) {
		<-release
		sawCancel.Store(ctx.Err() != nil)
	}))

	Track(ctx, p, EventAnalysisComplete, nil)
	cancel()
	close(release)
	p.Flush()

	assert.False(t, sawCancel.Load())
}

func TestMetricsTracker(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "events_total"}, []string{"event"})
	m := NewMetricsTracker(counter)

	Track(context.Background(), m, EventError, nil)
	Track(context.Background(), m, EventError, nil)
	Track(context.Background(), m, EventAnalysisComplete, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(counter.WithLabelValues(EventError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues(EventAnalysisComplete)))
}

func TestRecorderFind(t *testing.T) {
	rec := NewRecorder()
	Track(context.Background(), rec, EventAnalysisSuccess, Properties{"gender": "male"})

	e, ok := rec.Find(EventAnalysisSuccess)
	require.True(t, ok)
	assert.Equal(t, "male", e.Properties["gender"])

	_, ok = rec.Find(EventError)
	assert.False(t, ok)
}

type trackedEvent struct {
	Event      string                 `json:"event"`
	Properties map[string]interface{} `json:"properties"`
}

func decodeTrackBody(t *testing.T, r *http.Request) []trackedEvent {
	t.Helper()
	var body io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		require.NoError(t, err)
		defer zr.Close()
		body = zr
	}
	var got []trackedEvent
	require.NoError(t, json.NewDecoder(body).Decode(&got))
	return got
}

func TestMixpanelSend(t *testing.T) {
	var got []trackedEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/track", r.URL.Path)
		got = decodeTrackBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":1,"error":null}`))
	}))
	defer server.Close()

	client := NewMixpanelClient(server.URL+"/", "tok")
	event := Event{
		Name:       EventAnalysisComplete,
		Properties: Properties{"totalScore": 70},
		DistinctID: "user-1",
		InsertID:   "ins-1",
		Timestamp:  time.UnixMilli(1700000000000),
	}

	require.NoError(t, client.Send(context.Background(), event))
	require.Len(t, got, 1)
	assert.Equal(t, EventAnalysisComplete, got[0].Event)
	assert.Equal(t, "tok", got[0].Properties["token"])
	assert.Equal(t, "ins-1", got[0].Properties["$insert_id"])
	assert.Equal(t, "user-1", got[0].Properties["distinct_id"])
	assert.Contains(t, got[0].Properties, "time")
	assert.Equal(t, float64(70), got[0].Properties["totalScore"])
}

func TestMixpanelSendFailures(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantRejected bool
	}{
		{name: "server error", status: 503, body: `{"error":"unavailable","status":0}`, wantRejected: false},
		{name: "throttled", status: 429, body: `{"error":"rate limited","status":0}`, wantRejected: false},
		{name: "bad request", status: 400, body: `{"error":"invalid token","status":0}`, wantRejected: true},
		{name: "unauthorized", status: 401, body: `{"error":"bad project","status":0}`, wantRejected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := NewMixpanelClient(server.URL, "tok").Send(context.Background(), Event{Name: "x", InsertID: "i"})
			require.Error(t, err)
			assert.Equal(t, tt.wantRejected, errors.Is(err, ErrRejected))
		})
	}
}

func TestMixpanelSendUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := NewMixpanelClient(url, "tok").Send(context.Background(), Event{Name: "x", InsertID: "i"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRejected))
}
