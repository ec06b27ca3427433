package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetForecastParsesDailyProbability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "start_date=2026-09-03")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"daily":{"precipitation_probability_max":[80]}}`))
	}))
	defer server.Close()

	client := NewOpenMeteoClient(server.URL)
	forecast, err := client.GetForecast(context.Background(), 30.27, -97.74, "2026-09-03")

	require.NoError(t, err)
	assert.InDelta(t, 0.8, forecast.RainProbability, 0.001)
	assert.Contains(t, forecast.Summary, "80% chance of precipitation")
}

func TestGetForecastUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewOpenMeteoClient(server.URL)
	_, err := client.GetForecast(context.Background(), 30.27, -97.74, "2026-09-03")

	assert.Error(t, err)
}

func TestGetForecastEmptyDailyData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"daily":{"precipitation_probability_max":[]}}`))
	}))
	defer server.Close()

	client := NewOpenMeteoClient(server.URL)
	_, err := client.GetForecast(context.Background(), 30.27, -97.74, "2026-09-03")

	assert.Error(t, err)
}
