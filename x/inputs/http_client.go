package inputs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
)

var _ Provider = (*HTTPClient)(nil)

// HTTPClient fetches proving inputs from the sequencer's REST API.
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	log        zerolog.Logger
}

// NewHTTPClient constructs an input client for the given base URL.
func NewHTTPClient(rawURL string, httpClient *http.Client, log zerolog.Logger) (*HTTPClient, error) {
	if rawURL == "" {
		return nil, errors.New("base URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid inputs base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &HTTPClient{
		baseURL:    parsed,
		httpClient: httpClient,
		log:        log.With().Str("component", "inputs-client").Logger(),
	}, nil
}

type inputResponse struct {
	BatchNumber uint64        `json:"batch_number"`
	Input       hexutil.Bytes `json:"input"`
}

// ProvingInput fetches GET /batches/{n}/input. A 404 means the batch has
// no input yet and is reported as ok=false, not as an error.
func (c *HTTPClient) ProvingInput(ctx context.Context, batch uint64) ([]byte, bool, error) {
	endpoint := c.buildURL("batches", strconv.FormatUint(batch, 10), "input")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("prepare input request: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("get proving input: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		c.log.Debug().Uint64("batch", batch).Msg("No proving input available yet")
		return nil, false, nil
	}
	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, false, fmt.Errorf("inputs API returned %s: %s", res.Status, string(msg))
	}

	var body inputResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, false, fmt.Errorf("decode input response: %w", err)
	}
	if body.BatchNumber != batch {
		return nil, false, fmt.Errorf("inputs API returned batch %d, requested %d", body.BatchNumber, batch)
	}

	return body.Input, true, nil
}

func (c *HTTPClient) buildURL(elem ...string) string {
	clone := *c.baseURL
	clone.Path = path.Join(append([]string{c.baseURL.Path}, elem...)...)
	return clone.String()
}
