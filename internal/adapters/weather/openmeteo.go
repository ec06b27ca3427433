package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rooftopsai/rooftopsgpt-sub003/internal/domain"
)

// OpenMeteoClient fetches a daily precipitation forecast from the
// open-meteo API. No key required.
type OpenMeteoClient struct {
	client  *http.Client
	baseURL string
}

func NewOpenMeteoClient(baseURL string) *OpenMeteoClient {
	if baseURL == "" {
		baseURL = "https://api.open-meteo.com"
	}
	return &OpenMeteoClient{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
	}
}

func (c *OpenMeteoClient) GetForecast(ctx context.Context, latitude, longitude float64, date string) (*domain.Forecast, error) {
	url := fmt.Sprintf(
		"%s/v1/forecast?latitude=%f&longitude=%f&daily=precipitation_probability_max,weather_code&start_date=%s&end_date=%s",
		c.baseURL, latitude, longitude, date, date)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forecast request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forecast request: %s", resp.Status)
	}

	var body struct {
		Daily struct {
			PrecipitationProbabilityMax []float64 `json:"precipitation_probability_max"`
		} `json:"daily"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode forecast: %w", err)
	}
	if len(body.Daily.PrecipitationProbabilityMax) == 0 {
		return nil, fmt.Errorf("forecast response had no daily data")
	}

	prob := body.Daily.PrecipitationProbabilityMax[0]
	return &domain.Forecast{
		RainProbability: prob / 100,
		Summary:         fmt.Sprintf("%.0f%% chance of precipitation on %s", prob, date),
	}, nil
}
