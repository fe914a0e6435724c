package demand

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/selivandex/pricing-engine/pkg/models"
)

// Client implements Provider against the forecasting service HTTP API
type Client struct {
	baseURL string
	client  *http.Client
}

var _ Provider = (*Client)(nil)

// NewClient creates new demand forecast client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) GetName() string {
	return "demand-forecast"
}

type forecastResponse struct {
	Forecast []models.DemandPoint `json:"forecast"`
}

// Forecast requests the daily forecast for a flight cabin
func (c *Client) Forecast(ctx context.Context, flightID int64, cabin models.CabinClass, horizonDays int) ([]models.DemandPoint, error) {
	q := url.Values{}
	q.Set("flight_id", strconv.FormatInt(flightID, 10))
	q.Set("cabin_class", string(cabin))
	q.Set("days", strconv.Itoa(horizonDays))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/forecast?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var result forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Forecast, nil
}
