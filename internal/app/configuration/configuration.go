package configuration

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"

	"github.com/form3tech-oss/pact-broker-client/pkg/pactbroker"
)

// NewFromEnv builds the broker client configuration from the PACT_BROKER_*
// environment variables.
func NewFromEnv() (pactbroker.Config, error) {
	ctx := context.Background()

	var config pactbroker.Config
	err := envconfig.Process(ctx, &config)
	if err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	return config, nil
}
