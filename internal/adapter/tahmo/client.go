// Package tahmo reads the TAHMO weather-station directory.
package tahmo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/site-registry/internal/domain"
)

const source = "tahmo stations"

// Client implements domain.StationDirectory against the TAHMO assets API.
type Client struct {
	url        string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a TAHMO client authenticating with HTTP basic auth.
func NewClient(url, username, password string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url:        url,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Stations fetches the full station list.
func (c *Client) Stations(ctx context.Context) ([]domain.WeatherStation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.UpstreamError{
			Source: source,
			Err:    fmt.Errorf("status %d: %s", resp.StatusCode, body),
		}
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &domain.UpstreamError{Source: source, Err: fmt.Errorf("decode response: %w", err)}
	}

	out := make([]domain.WeatherStation, 0, len(payload.Data))
	for _, s := range payload.Data {
		out = append(out, s.toDomain())
	}
	c.logger.Debug("fetched weather stations", "count", len(out))
	return out, nil
}

// TAHMO API response types.

type response struct {
	Data []station `json:"data"`
}

type station struct {
	ID       int    `json:"id"`
	Code     string `json:"code"`
	Location struct {
		Latitude       float64         `json:"latitude"`
		Longitude      float64         `json:"longitude"`
		ElevationMSL   float64         `json:"elevationmsl"`
		CountryCode    string          `json:"countrycode"`
		Timezone       string          `json:"timezone"`
		TimezoneOffset json.RawMessage `json:"timezoneoffset"`
		Name           string          `json:"name"`
		Type           string          `json:"type"`
	} `json:"location"`
}

func (s station) toDomain() domain.WeatherStation {
	return domain.WeatherStation{
		ID:             s.ID,
		Code:           s.Code,
		Location:       domain.Coordinate{Lat: s.Location.Latitude, Lng: s.Location.Longitude},
		Elevation:      s.Location.ElevationMSL,
		CountryCode:    s.Location.CountryCode,
		Timezone:       s.Location.Timezone,
		TimezoneOffset: rawString(s.Location.TimezoneOffset),
		Name:           s.Location.Name,
		Type:           s.Location.Type,
	}
}

// rawString renders a JSON scalar that may be sent as either a string or a number.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
