package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salvage-radar/metrics"
	"salvage-radar/models"
	"salvage-radar/utils"
)

func hotOffer(lot string) (*models.Offer, *models.Analysis) {
	return &models.Offer{LotNumber: lot, Make: "BMW", Model: "530i", Year: 2020, CurrentBid: 15200},
		&models.Analysis{Recommendation: models.RecommendationBuy, ProfitMargin: 0.32, RiskScore: 3}
}

func TestWebhookPostsNotification(t *testing.T) {
	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	o, a := hotOffer("45678912")
	require.NoError(t, NewWebhook(srv.URL, 0).Notify(t.Context(), o, a))

	require.NotNil(t, got.Offer)
	assert.Equal(t, "45678912", got.Offer.LotNumber)
	assert.Equal(t, models.RecommendationBuy, got.Analysis.Recommendation)
	assert.False(t, got.SentAt.IsZero())
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, 3)
	wh.client.RetryWaitMin = time.Millisecond
	wh.client.RetryWaitMax = 5 * time.Millisecond

	o, a := hotOffer("1")
	require.NoError(t, wh.Notify(t.Context(), o, a))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	o, a := hotOffer("1")
	assert.Error(t, NewWebhook(srv.URL, 0).Notify(t.Context(), o, a))
}

type recordingNotifier struct {
	mu    sync.Mutex
	lots  []string
	gate  chan struct{}
	fails bool
}

func (r *recordingNotifier) Notify(_ context.Context, o *models.Offer, _ *models.Analysis) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lots = append(r.lots, o.LotNumber)
	if r.fails {
		return errors.New("unreachable")
	}
	return nil
}

func TestDispatcherDeliversAndDrains(t *testing.T) {
	n := &recordingNotifier{}
	d := NewDispatcher(n, 8, utils.NewNopLogger(), nil)

	for _, lot := range []string{"1", "2", "3"} {
		o, a := hotOffer(lot)
		assert.True(t, d.Enqueue(o, a))
	}
	d.Close()

	assert.Equal(t, []string{"1", "2", "3"}, n.lots)

	o, a := hotOffer("4")
	assert.False(t, d.Enqueue(o, a), "enqueue after close")
	d.Close()
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	n := &recordingNotifier{gate: make(chan struct{})}
	d := NewDispatcher(n, 1, utils.NewNopLogger(), m)

	accepted := 0
	for _, lot := range []string{"1", "2", "3", "4"} {
		o, a := hotOffer(lot)
		if d.Enqueue(o, a) {
			accepted++
		}
	}
	close(n.gate)
	d.Close()

	// One job is held by the worker and one sits in the queue at most.
	assert.LessOrEqual(t, accepted, 2)
	assert.GreaterOrEqual(t, accepted, 1)
	assert.Len(t, n.lots, accepted)
	assert.Equal(t, float64(4-accepted), testutil.ToFloat64(m.NotificationsDropped))
}

func TestDispatcherLogsFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	n := &recordingNotifier{fails: true}
	d := NewDispatcher(n, 4, utils.NewNopLogger(), m)

	o, a := hotOffer("1")
	require.True(t, d.Enqueue(o, a))
	d.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("error")))
}
