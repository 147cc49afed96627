package health

import (
	"context"
	"fmt"

	"github.com/evoxlab/eva/pkg/exchange"
)

// ExchangeChecker reports readiness of the remote EVA service by hitting its
// health endpoint. The client is unusable for voice or text exchanges while
// this check fails.
func ExchangeChecker(client exchange.Contract) Checker {
	return Checker{
		Name: "exchange",
		Check: func(ctx context.Context) error {
			h, err := client.CheckHealth(ctx)
			if err != nil {
				return err
			}
			if h.Status != "healthy" && h.Status != "ok" {
				return fmt.Errorf("service reports status %q", h.Status)
			}
			return nil
		},
	}
}
