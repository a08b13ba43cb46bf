package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mixpanel/mixpanel-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const mixpanelTimeout = 10 * time.Second

// ErrRejected marks an event Mixpanel refused; retrying will not help
var ErrRejected = errors.New("event rejected")

// Sink delivers a single event to a remote collector
type Sink interface {
	Send(ctx context.Context, event Event) error
}

// MixpanelClient sends events through the Mixpanel ingestion API
type MixpanelClient struct {
	api *mixpanel.ApiClient
}

// NewMixpanelClient creates a client for the given project token. An empty
// baseURL uses the Mixpanel default endpoint.
func NewMixpanelClient(baseURL, token string) *MixpanelClient {
	opts := []mixpanel.Options{
		mixpanel.HttpClient(&http.Client{
			Timeout:   mixpanelTimeout,
			Transport: statusTransport{next: otelhttp.NewTransport(http.DefaultTransport)},
		}),
	}
	if baseURL != "" {
		opts = append(opts, mixpanel.ProxyApiLocation(strings.TrimRight(baseURL, "/")))
	}
	return &MixpanelClient{api: mixpanel.NewApiClient(token, opts...)}
}

// Send delivers event. Transport failures, throttling and 5xx responses are
// returned wrapped so the caller may retry; any other refusal wraps
// ErrRejected.
func (m *MixpanelClient) Send(ctx context.Context, event Event) error {
	props := make(map[string]any, len(event.Properties)+2)
	for k, v := range event.Properties {
		props[k] = v
	}
	props["time"] = event.Timestamp.UnixMilli()
	props["$insert_id"] = event.InsertID

	var status int
	ctx = context.WithValue(ctx, statusKey{}, &status)

	err := m.api.Track(ctx, []*mixpanel.Event{m.api.NewEvent(event.Name, event.DistinctID, props)})
	if err == nil {
		return nil
	}

	switch {
	case status == 0:
		return fmt.Errorf("send event: %w", err)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("mixpanel server error: status %d: %w", status, err)
	default:
		return fmt.Errorf("%w: status %d: %v", ErrRejected, status, err)
	}
}

type statusKey struct{}

// statusTransport records the response status into the *int stored under
// statusKey in the request context, so Send can tell rejections from
// transient failures.
type statusTransport struct {
	next http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if resp != nil {
		if status, ok := req.Context().Value(statusKey{}).(*int); ok {
			*status = resp.StatusCode
		}
	}
	return resp, err
}
