package homework

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	logx "homeworkbot/pkg/logx"
)

const DefaultEndpoint = "https://practicum.yandex.ru/api/user_api/homework_statuses/"

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

type ClientConfig struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
}

// Client queries the homework status API. One call, one GET; no retries.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	log  logx.Logger
}

func NewClient(cfg ClientConfig, hc *http.Client, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, http: hc, log: log}
}

// Fetch returns the decoded JSON body for homework updated since from (unix seconds).
// The result is not validated; see ParseResponse.
func (c *Client) Fetch(ctx context.Context, from int64) (any, error) {
	const op = "get_api_answer"
	if ctx == nil {
		ctx = context.Background()
	}

	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, newError(KindResponseFailure, op, err, "invalid endpoint %q", c.cfg.Endpoint)
	}
	q := u.Query()
	q.Set("from_date", strconv.FormatInt(from, 10))
	u.RawQuery = q.Encode()

	rctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, newError(KindResponseFailure, op, err, "build request")
	}
	req.Header.Set("Authorization", "OAuth "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	c.log.Debug("requesting homework statuses", logx.String("endpoint", c.cfg.Endpoint), logx.Int64("from_date", from))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, newError(KindResponseFailure, op, err, "request to %s failed", c.cfg.Endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, newError(KindResponseFailure, op, nil, "endpoint %s returned status %d", c.cfg.Endpoint, resp.StatusCode)
	}

	var body any
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, newError(KindResponseFailure, op, err, "decode response body")
	}
	return body, nil
}
