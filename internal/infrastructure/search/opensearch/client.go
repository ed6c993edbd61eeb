package opensearch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 100 * time.Millisecond
	maxIdleConnsPerHost = 10
)

// Client holds the OpenSearch transport and the name of the annotated
// document index.
type Client struct {
	transport opensearchapi.Transport
	index     string
	logger    logging.Logger
	healthy   atomic.Bool
}

// NewClient creates the SDK client and pings the cluster once.
func NewClient(ctx context.Context, cfg config.OpenSearchConfig, log logging.Logger) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	transport := &http.Transport{MaxIdleConnsPerHost: maxIdleConnsPerHost}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	sdk, err := opensearch.NewClient(opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.User,
		Password:      cfg.Password,
		MaxRetries:    defaultMaxRetries,
		RetryBackoff:  func(int) time.Duration { return defaultRetryBackoff },
		RetryOnStatus: []int{502, 503, 504, 429},
		Transport:     transport,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearchError, "failed to create opensearch client")
	}

	c := newClientWithTransport(sdk, cfg.Index, log)
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	c.logger.Info("OpenSearch client connected", logging.Strings("addresses", cfg.Addresses), logging.String("index", cfg.Index))
	return c, nil
}

func newClientWithTransport(t opensearchapi.Transport, index string, log logging.Logger) *Client {
	return &Client{transport: t, index: index, logger: logging.OrNop(log).Named("opensearch")}
}

// Index returns the annotated document index name.
func (c *Client) Index() string { return c.index }

// Ping checks that the cluster answers and records the result for IsHealthy.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := opensearchapi.PingRequest{}.Do(ctx, c.transport)
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("OpenSearch ping failed", logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "opensearch unreachable")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		c.healthy.Store(false)
		c.logger.Warn("OpenSearch ping returned error status", logging.Int("status", resp.StatusCode))
		return errors.Newf(errors.ErrCodeServiceUnavailable, "opensearch ping status %d", resp.StatusCode)
	}
	c.healthy.Store(true)
	return nil
}

// IsHealthy reports the outcome of the last Ping.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *Client) Close() error {
	c.logger.Info("OpenSearch client closed")
	return nil
}

// ValidateConfig checks the opensearch configuration section.
func ValidateConfig(cfg config.OpenSearchConfig) error {
	if len(cfg.Addresses) == 0 {
		return errors.New(errors.ErrCodeValidation, "opensearch addresses are required")
	}
	if cfg.Index == "" {
		return errors.New(errors.ErrCodeValidation, "opensearch index is required")
	}
	return nil
}

// responseError turns an error response into a SearchError carrying the
// server's reason when one is present.
func responseError(resp *opensearchapi.Response, message string) error {
	var body struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Reason != "" {
		return errors.New(errors.ErrCodeSearchError, message).WithDetail(body.Error.Type + ": " + body.Error.Reason)
	}
	return errors.Newf(errors.ErrCodeSearchError, "%s: status %d", message, resp.StatusCode)
}
