// Package djia fetches the Dow Jones Industrial Average opening value
// from a crox.net-style index mirror.
//
// The wire contract is a single plain-text decimal per date at
// GET <base>/<YYYY>/<MM>/<DD>. The body is passed through verbatim
// (surrounding whitespace aside) because the exact string is what gets
// hashed; re-parsing it as a number would corrupt every destination
// derived from it.
package djia

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/geohash-dispatch/internal/domain"
)

// ConnectivityChecker reports whether the host currently has a network
// path, used to tell "the network is down" apart from "the source is
// unhappy".
type ConnectivityChecker interface {
	Connected(ctx context.Context) bool
}

// Client implements domain.StockSource over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	conn       ConnectivityChecker
	logger     *slog.Logger
}

// NewClient creates an index source client. conn may be nil, in which
// case transport failures are reported as transient.
func NewClient(baseURL string, timeout time.Duration, conn ConnectivityChecker, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		conn:   conn,
		logger: logger,
	}
}

// FetchIndexValue requests the opening value published for the given
// effective trading date and maps the response onto the fetch outcome
// taxonomy. It never returns an error: every failure mode is data.
func (c *Client) FetchIndexValue(ctx context.Context, date time.Time) domain.FetchOutcome {
	u := fmt.Sprintf("%s/%04d/%02d/%02d", c.baseURL, date.Year(), int(date.Month()), date.Day())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.FetchOutcome{Kind: domain.OutcomeTransient, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.conn != nil && !c.conn.Connected(ctx) {
			return domain.FetchOutcome{Kind: domain.OutcomeNoConnection, Err: err}
		}
		return domain.FetchOutcome{Kind: domain.OutcomeTransient, Err: fmt.Errorf("index request: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to the body
	case resp.StatusCode == http.StatusNotFound:
		// The mirror answers 404 until the day's value is posted.
		return domain.FetchOutcome{Kind: domain.OutcomeNotPosted}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return domain.FetchOutcome{
			Kind: domain.OutcomeTransient,
			Err:  fmt.Errorf("index source status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return domain.FetchOutcome{Kind: domain.OutcomeTransient, Err: fmt.Errorf("read response: %w", err)}
	}

	value := strings.TrimSpace(string(body))
	if !domain.ValidIndexValue(value) {
		c.logger.Error("index source returned a non-decimal value",
			"date", date.Format("2006-01-02"),
			"body", value,
		)
		return domain.FetchOutcome{
			Kind: domain.OutcomeMalformed,
			Err:  fmt.Errorf("malformed index value %q", value),
		}
	}

	return domain.FetchOutcome{Kind: domain.OutcomeSuccess, Value: value}
}
