package feed

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salvage-radar/utils"
)

func TestFetchEnvelope(t *testing.T) {
	var model string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		model = r.URL.Query().Get("model")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"listings": [
			{"lot_number": 31234567, "make": "Toyota", "model": "Camry", "year": 2019,
			 "current_bid": "9100", "buy_now_price": null, "damage": "REAR END",
			 "link": "https://example.com/lot/31234567"},
			{"lot_number": "31234568", "title": "2021 Honda Civic", "current_bid": 7250.5}
		]}`))
	}))
	defer srv.Close()

	s := New(srv.URL, time.Second, utils.NewNopLogger())
	got, err := s.Fetch(t.Context(), "camry")

	require.NoError(t, err)
	assert.Equal(t, "camry", model)
	require.Len(t, got, 2)

	assert.Equal(t, "31234567", got[0].LotNumber)
	assert.Equal(t, "2019", got[0].Year)
	assert.Equal(t, "9100", got[0].CurrentBid)
	assert.Empty(t, got[0].BuyNowPrice)
	assert.Equal(t, "REAR END", got[0].Damage)
	assert.Equal(t, s.Name(), got[0].Source)
	assert.False(t, got[0].ScrapedAt.IsZero())

	assert.Equal(t, "31234568", got[1].LotNumber)
	assert.Equal(t, "2021 Honda Civic", got[1].Title)
	assert.Equal(t, "7250.5", got[1].CurrentBid)
}

func TestFetchBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("model"))
		_, _ = w.Write([]byte(`[{"lot_number": "1", "make": "Ford", "model": "F-150", "year": "2018"}]`))
	}))
	defer srv.Close()

	got, err := New(srv.URL, time.Second, utils.NewNopLogger()).Fetch(t.Context(), "")

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ford", got[0].Make)
	assert.Equal(t, "2018", got[0].Year)
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"listings": [`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := New(srv.URL, time.Second, utils.NewNopLogger()).Fetch(t.Context(), "")
			assert.Error(t, err)
		})
	}
}

func TestSourceName(t *testing.T) {
	assert.Equal(t, "feed:feeds.example.com", New("https://feeds.example.com/v1/lots", time.Second, nil).Name())
}
