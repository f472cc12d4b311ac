package pactbroker

import (
	"encoding/json"
	"time"
)

// Broker relation names this client navigates. These are wire contract and
// must match the broker exactly.
const (
	relLatestProviderPacts        = "pb:latest-provider-pacts"
	relLatestProviderPactsWithTag = "pb:latest-provider-pacts-with-tag"
	relLatestUntaggedPactVersion  = "pb:latest-untagged-pact-version"
	relPacts                      = "pb:pacts"
	relProvider                   = "pb:provider"
	relVersionTag                 = "pb:version-tag"
	relPactsForVerification       = "pb:provider-pacts-for-verification"
	relPublishVerificationResults = "pb:publish-verification-results"
)

// Config holds the immutable client-wide settings, set once at construction.
type Config struct {
	BrokerBaseURL  string        `env:"PACT_BROKER_BASE_URL"`
	Username       string        `env:"PACT_BROKER_USERNAME"`
	Password       string        `env:"PACT_BROKER_PASSWORD"`
	Token          string        `env:"PACT_BROKER_TOKEN"`
	RequestTimeout time.Duration `env:"PACT_BROKER_REQUEST_TIMEOUT"`
}

// Consumer is one consumer discovered for a provider, with the URL of its
// latest pact. PactURL is percent-decoded and may be relative to BrokerURL.
type Consumer struct {
	Name      string
	PactURL   string
	BrokerURL string
	Tag       string
}

// PactResponse is a fetched pact: the raw document plus its decoded _links,
// which drive follow-on calls such as publishing verification results.
type PactResponse struct {
	PactFile json.RawMessage
	Links    map[string]interface{}
}
