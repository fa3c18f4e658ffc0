package cboe

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

const sourceLabel = "cboe"

// Client implements a SourceAdapter for the CBOE daily total put/call ratio
// feed.
type Client struct {
	baseURL string
	path    string
	client  *xhttp.Client
}

// New creates a put/call ratio source adapter.
func New(baseURL, path string, timeout time.Duration) drepo.SourceAdapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		path:    path,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (c *Client) Kind() models.IndicatorKind { return models.PutCallRatio }

func (c *Client) Name() string { return sourceLabel }

// pcResponse is the provider's ratio-history payload.
type pcResponse struct {
	Data []struct {
		Date  string   `json:"date"`
		Ratio *float64 `json:"ratio"`
	} `json:"data"`
}

// FetchLatest pulls the ratio history and normalizes it into a
// timestamp-ascending observation batch.
func (c *Client) FetchLatest(ctx context.Context) (*models.ObservationBatch, error) {
	resp, err := c.client.SendRequest(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + c.path,
		Headers: map[string]string{
			"Cache-Control": "no-cache",
		},
		// Cache buster: the CDN in front of the feed must not serve stale bytes.
		QueryParams: map[string][]string{
			"_ts": {strconv.FormatInt(time.Now().UnixNano(), 10)},
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

	var payload pcResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, models.NewFetchError(models.FetchMalformed, sourceLabel, err)
	}

	obs := make([]models.Observation, 0, len(payload.Data))
	for _, row := range payload.Data {
		ts, err := time.Parse(models.DateLayout, row.Date)
		if err != nil {
			continue // skip rows with unparseable dates
		}
		if row.Ratio == nil {
			continue
		}
		v := *row.Ratio
		obs = append(obs, models.Observation{
			Kind:      models.PutCallRatio,
			Value:     &v,
			Timestamp: ts,
			Source:    sourceLabel,
		})
	}
	if len(obs) == 0 {
		return nil, models.NewFetchError(models.FetchEmpty, sourceLabel, nil)
	}

	sort.Slice(obs, func(i, j int) bool { return obs[i].Timestamp.Before(obs[j].Timestamp) })
	return &models.ObservationBatch{
		Kind:         models.PutCallRatio,
		Source:       sourceLabel,
		Observations: obs,
	}, nil
}
