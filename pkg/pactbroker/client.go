package pactbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/url"

	"github.com/PaesslerAG/jsonpath"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/form3tech-oss/pact-broker-client/internal/app/hal"
	"github.com/form3tech-oss/pact-broker-client/internal/app/transport"
	"github.com/form3tech-oss/pact-broker-client/pkg/verification"
)

// Client talks to a Pact broker by navigating its HAL relations; beyond the
// broker root no URL is hard-coded except the conventional upload paths. All
// state is set at construction and never mutated, so a Client is safe for
// concurrent use.
type Client struct {
	config    Config
	transport *transport.Client
	navigator *hal.Navigator
}

func New(config Config) *Client {
	t := transport.New(config.BrokerBaseURL, transport.Options{
		Username: config.Username,
		Password: config.Password,
		Token:    config.Token,
		Timeout:  config.RequestTimeout,
	})
	return &Client{
		config:    config,
		transport: t,
		navigator: hal.NewNavigator(t, config.BrokerBaseURL),
	}
}

// ConsumersForProvider lists the consumers that hold a pact with the given
// provider. A provider unknown to the broker yields an empty list, not an
// error.
func (c *Client) ConsumersForProvider(ctx context.Context, provider string) ([]Consumer, error) {
	return c.discoverConsumers(ctx, "", relPacts, hal.Step{
		Variables: map[string]string{"provider": provider},
		Relation:  relLatestProviderPacts,
	})
}

// ConsumersForProviderWithTag lists consumers whose latest pact carries the
// given consumer version tag.
func (c *Client) ConsumersForProviderWithTag(ctx context.Context, provider, tag string) ([]Consumer, error) {
	return c.discoverConsumers(ctx, tag, relPacts, hal.Step{
		Variables: map[string]string{"provider": provider, "tag": tag},
		Relation:  relLatestProviderPactsWithTag,
	})
}

// UntaggedConsumersForProvider lists consumers by their latest untagged pact
// version.
func (c *Client) UntaggedConsumersForProvider(ctx context.Context, provider string) ([]Consumer, error) {
	return c.discoverConsumers(ctx, "", relPacts, hal.Step{
		Variables: map[string]string{"provider": provider},
		Relation:  relLatestUntaggedPactVersion,
	})
}

// PactsForVerification lists the pacts the broker selects for verification of
// a provider.
func (c *Client) PactsForVerification(ctx context.Context, provider string) ([]Consumer, error) {
	return c.discoverConsumers(ctx, "", "pacts", hal.Step{
		Variables: map[string]string{"provider": provider},
		Relation:  relPactsForVerification,
	})
}

func (c *Client) discoverConsumers(ctx context.Context, tag, collection string, step hal.Step) ([]Consumer, error) {
	navCtx, err := c.navigator.Navigate(ctx, "/", step)
	if err != nil {
		if hal.IsRelationNotFound(err) {
			log.Infof("relation '%s' not present, no pacts in broker for this provider", step.Relation)
			return []Consumer{}, nil
		}
		return nil, err
	}

	consumers := make([]Consumer, 0)
	err = navCtx.ForAll(collection, func(link hal.Link) error {
		consumers = append(consumers, Consumer{
			Name:      link.Name,
			PactURL:   hal.DecodeHref(link.Href),
			BrokerURL: c.config.BrokerBaseURL,
			Tag:       tag,
		})
		return nil
	})
	if err != nil {
		if hal.IsRelationNotFound(err) {
			return []Consumer{}, nil
		}
		return nil, err
	}
	return consumers, nil
}

// ProviderPactsURL resolves the pacts URL for a provider without fetching the
// pacts themselves. An empty or "latest" tag selects the latest pacts
// relation, anything else the tagged variant.
func (c *Client) ProviderPactsURL(ctx context.Context, provider, tag string) (string, error) {
	navCtx, err := c.navigator.Navigate(ctx, "/")
	if err != nil {
		return "", err
	}
	if tag == "" || tag == "latest" {
		return navCtx.LinkURL(map[string]string{"provider": provider}, relLatestProviderPacts)
	}
	return navCtx.LinkURL(map[string]string{"provider": provider, "tag": tag}, relLatestProviderPactsWithTag)
}

// FetchPact retrieves a pact from its fully resolved URL, returning the raw
// pact body together with its decoded _links for follow-on calls.
func (c *Client) FetchPact(ctx context.Context, pactURL string) (*PactResponse, error) {
	body, err := c.transport.Get(ctx, pactURL)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to fetch pact from %s", pactURL)
	}

	fields := make(map[string]interface{})
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, errors.Wrap(err, "unable to parse pact document")
	}
	links, _ := fields["_links"].(map[string]interface{})
	return &PactResponse{PactFile: body, Links: links}, nil
}

// UploadPact reads a pact file and publishes it for the given consumer
// version, creating any consumer version tags first. Upload uses the broker's
// conventional paths rather than hypermedia navigation.
func (c *Client) UploadPact(ctx context.Context, pactFilePath, version string, tags []string) error {
	data, err := ioutil.ReadFile(pactFilePath)
	if err != nil {
		return errors.Wrapf(err, "unable to read pact file %s", pactFilePath)
	}

	document := make(map[string]interface{})
	if err := json.Unmarshal(data, &document); err != nil {
		return errors.Wrapf(err, "unable to parse pact file %s", pactFilePath)
	}

	provider, err := pactParticipant(document, "$.provider.name")
	if err != nil {
		return err
	}
	consumer, err := pactParticipant(document, "$.consumer.name")
	if err != nil {
		return err
	}

	for _, tag := range tags {
		if err := c.TagPacticipantVersion(ctx, consumer, version, tag); err != nil {
			return err
		}
	}

	pactPath := fmt.Sprintf("/pacts/provider/%s/consumer/%s/version/%s",
		url.PathEscape(provider), url.PathEscape(consumer), url.PathEscape(version))
	log.Infof("uploading pact between %s and %s, consumer version %s", consumer, provider, version)
	if err := c.transport.Put(ctx, pactPath, json.RawMessage(data)); err != nil {
		return errors.Wrap(err, "unable to upload pact")
	}
	return nil
}

// TagPacticipantVersion tags an application version through the broker's
// conventional tag path.
func (c *Client) TagPacticipantVersion(ctx context.Context, pacticipant, version, tag string) error {
	tagPath := fmt.Sprintf("/pacticipants/%s/versions/%s/tags/%s",
		url.PathEscape(pacticipant), url.PathEscape(version), url.PathEscape(tag))
	log.Infof("tagging version %s of %s as '%s'", version, pacticipant, tag)
	return errors.Wrapf(c.transport.Put(ctx, tagPath, nil),
		"unable to tag version %s of %s", version, pacticipant)
}

// PublishVerificationResults posts an outcome against a previously fetched
// pact. The pact's links must contain pb:publish-verification-results;
// without it the results cannot be attributed to a pact, so this fails before
// any HTTP call is made.
func (c *Client) PublishVerificationResults(ctx context.Context, pact *PactResponse, outcome verification.Outcome, providerApplicationVersion, buildURL string) error {
	doc := hal.DocumentFromLinks(pact.Links)
	link, err := doc.Relation(relPublishVerificationResults)
	if err != nil || link.Href == "" {
		return errors.Errorf("unable to publish verification results: pact document has no '%s' link", relPublishVerificationResults)
	}

	payload := verification.BuildPayload(outcome, providerApplicationVersion, buildURL)
	if err := c.transport.Post(ctx, hal.DecodeHref(link.Href), payload); err != nil {
		return errors.Wrap(err, "unable to publish verification results")
	}
	log.Infof("published verification results for provider version %s (success: %t)", providerApplicationVersion, payload.Success)
	return nil
}

// TagProviderVersion tags a provider version, navigating pb:provider from the
// pact's links. Tagging is advisory: every failure is logged and swallowed so
// a failed tag never fails a verification run.
func (c *Client) TagProviderVersion(ctx context.Context, pact *PactResponse, version string, tags []string) {
	doc := hal.DocumentFromLinks(pact.Links)
	navCtx, err := c.navigator.NavigateFrom(ctx, doc, hal.Step{Relation: relProvider})
	if err != nil {
		log.Warnf("unable to tag provider version %s: %v", version, err)
		return
	}

	for _, tag := range tags {
		tagURL, err := navCtx.LinkURL(map[string]string{"version": version, "tag": tag}, relVersionTag)
		if err != nil {
			log.Warnf("unable to tag provider version %s as '%s': %v", version, tag, err)
			continue
		}
		log.Infof("tagging provider version %s as '%s'", version, tag)
		if err := c.transport.Put(ctx, tagURL, nil); err != nil {
			log.Warnf("unable to tag provider version %s as '%s': %v", version, tag, err)
		}
	}
}

func pactParticipant(document map[string]interface{}, path string) (string, error) {
	value, err := jsonpath.Get(path, document)
	if err != nil {
		return "", errors.Errorf("pact file has no %s", path)
	}
	name, ok := value.(string)
	if !ok || name == "" {
		return "", errors.Errorf("pact file has no %s", path)
	}
	return name, nil
}
