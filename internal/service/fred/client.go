package fred

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	xhttp "MarketPulse/pkg/http"
)

const (
	sourceLabel = "fred"

	// T10Y2Y is the 10-year minus 2-year constant maturity spread series.
	defaultSeries = "T10Y2Y"
)

// Client implements a SourceAdapter for the FRED observations API.
type Client struct {
	baseURL  string
	apiKey   string
	seriesID string
	window   int // calendar days of history requested per fetch
	client   *xhttp.Client
}

// New creates a yield-curve spread source adapter.
func New(baseURL, apiKey, seriesID string, windowDays int, timeout time.Duration) drepo.SourceAdapter {
	if seriesID == "" {
		seriesID = defaultSeries
	}
	if windowDays <= 0 {
		windowDays = 45
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		seriesID: seriesID,
		window:   windowDays,
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (c *Client) Kind() models.IndicatorKind { return models.YieldCurveSpread }

func (c *Client) Name() string { return sourceLabel }

// fredResponse is the observations payload. Values arrive as strings; "."
// marks a date the series has no reading for.
type fredResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// FetchLatest pulls the recent spread observations, timestamp-ascending.
func (c *Client) FetchLatest(ctx context.Context) (*models.ObservationBatch, error) {
	start := time.Now().UTC().AddDate(0, 0, -c.window).Format(models.DateLayout)

	resp, err := c.client.SendRequest(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/fred/series/observations",
		Headers: map[string]string{
			"Cache-Control": "no-cache",
		},
		QueryParams: map[string][]string{
			"series_id":         {c.seriesID},
			"api_key":           {c.apiKey},
			"file_type":         {"json"},
			"observation_start": {start},
			"sort_order":        {"asc"},
			"_ts":               {strconv.FormatInt(time.Now().UnixNano(), 10)},
		},
	})
	if err != nil {
		return nil, models.NewFetchError(models.FetchUnreachable, sourceLabel, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewFetchError(models.FetchUnreachable, sourceLabel, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.FetchError{Kind: models.FetchBadStatus, Source: sourceLabel, Status: resp.StatusCode}
	}

	var payload fredResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, models.NewFetchError(models.FetchMalformed, sourceLabel, err)
	}

	obs := make([]models.Observation, 0, len(payload.Observations))
	hasValue := false
	for _, row := range payload.Observations {
		ts, err := time.Parse(models.DateLayout, row.Date)
		if err != nil {
			continue
		}
		o := models.Observation{
			Kind:      models.YieldCurveSpread,
			Timestamp: ts,
			Source:    sourceLabel,
		}
		// "." is the series' explicit missing-value marker.
		if row.Value != "." {
			v, err := strconv.ParseFloat(row.Value, 64)
			if err != nil {
				return nil, models.NewFetchError(models.FetchMalformed, sourceLabel, err)
			}
			o.Value = &v
			hasValue = true
		}
		obs = append(obs, o)
	}
	if !hasValue {
		return nil, models.NewFetchError(models.FetchEmpty, sourceLabel, nil)
	}

	sort.Slice(obs, func(i, j int) bool { return obs[i].Timestamp.Before(obs[j].Timestamp) })
	return &models.ObservationBatch{
		Kind:         models.YieldCurveSpread,
		Source:       sourceLabel,
		Observations: obs,
	}, nil
}
