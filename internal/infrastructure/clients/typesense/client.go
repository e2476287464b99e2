package typesense

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/typesense/typesense-go/v2/typesense"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/config"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/retry"
)

// Client represents a Typesense client
type Client struct {
	client *typesense.Client
}

// NewClient creates a new Typesense client and waits until the server is healthy
func NewClient(ctx context.Context, cfg *config.TypesenseConfig) (*Client, error) {
	client := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(5*time.Second),
	)

	retryConfig := retry.DefaultConfig()
	retryConfig.MaxTotalTimeout = 30 * time.Second
	err := retry.DoWithLog(ctx, retryConfig, "Typesense",
		func() error {
			healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			ok, err := client.Health(healthCtx, 2*time.Second)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("typesense at %s reports unhealthy", cfg.URL)
			}
			return nil
		},
		func(attempt int, err error, nextDelay time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("next_delay", nextDelay).Msg("Typesense connection attempt failed")
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Typesense after retries: %w", err)
	}

	log.Info().Str("url", cfg.URL).Msg("Connected to Typesense")
	return &Client{client: client}, nil
}

// Client returns the underlying Typesense client
func (c *Client) Client() *typesense.Client {
	return c.client
}
