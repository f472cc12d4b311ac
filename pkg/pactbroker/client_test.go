package pactbroker

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/sjson"

	"github.com/form3tech-oss/pact-broker-client/pkg/verification"
)

type fakeBroker struct {
	e        *echo.Echo
	server   *httptest.Server
	requests []string
}

func newFakeBroker(t *testing.T) *fakeBroker {
	e := echo.New()
	e.HideBanner = true

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	broker := &fakeBroker{e: e, server: server}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			broker.requests = append(broker.requests, c.Request().Method+" "+c.Request().URL.RequestURI())
			return next(c)
		}
	})
	return broker
}

// serveIndex registers the broker root document. Each relation href is
// patched into a fixture, templated when it carries placeholders.
func (b *fakeBroker) serveIndex(t *testing.T, relations map[string]string) {
	index := []byte(`{"_links": {"self": {"href": "/"}}}`)
	var err error
	for rel, href := range relations {
		index, err = sjson.SetBytes(index, "_links."+rel+".href", href)
		require.NoError(t, err)
		if strings.Contains(href, "{") {
			index, err = sjson.SetBytes(index, "_links."+rel+".templated", true)
			require.NoError(t, err)
		}
	}
	b.e.GET("/", func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, index)
	})
}

func (b *fakeBroker) client() *Client {
	return New(Config{BrokerBaseURL: b.server.URL})
}

func TestConsumersForProvider(t *testing.T) {
	broker := newFakeBroker(t)
	broker.serveIndex(t, map[string]string{
		relLatestProviderPacts: "/pacts/provider/{provider}/latest",
	})
	broker.e.GET("/pacts/provider/:provider/latest", func(c echo.Context) error {
		require.Equal(t, "My Provider", c.Param("provider"))
		return c.JSON(http.StatusOK, map[string]interface{}{
			"_links": map[string]interface{}{
				"pb:pacts": []interface{}{
					map[string]interface{}{"href": "/pacts/provider/My%20Provider/consumer/consumer-one/latest", "name": "consumer-one"},
					map[string]interface{}{"href": broker.server.URL + "/pacts/provider/My%20Provider/consumer/consumer-two/latest", "name": "consumer-two"},
				},
			},
		})
	})

	consumers, err := broker.client().ConsumersForProvider(context.Background(), "My Provider")
	require.NoError(t, err)
	require.Len(t, consumers, 2)

	assert.Equal(t, "consumer-one", consumers[0].Name)
	assert.Equal(t, "/pacts/provider/My Provider/consumer/consumer-one/latest", consumers[0].PactURL)
	assert.Equal(t, broker.server.URL, consumers[0].BrokerURL)
	assert.Empty(t, consumers[0].Tag)
	assert.Equal(t, "consumer-two", consumers[1].Name)

	// the provider path segment was escaped on the wire
	assert.Contains(t, broker.requests, "GET /pacts/provider/My%20Provider/latest")
}

func TestConsumersForProviderWithTag(t *testing.T) {
	broker := newFakeBroker(t)
	broker.serveIndex(t, map[string]string{
		relLatestProviderPactsWithTag: "/pacts/provider/{provider}/latest/{tag}",
	})
	broker.e.GET("/pacts/provider/:provider/latest/:tag", func(c echo.Context) error {
		require.Equal(t, "prod", c.Param("tag"))
		return c.JSON(http.StatusOK, map[string]interface{}{
			"_links": map[string]interface{}{
				"pb:pacts": []interface{}{
					map[string]interface{}{"href": "/pacts/1", "name": "consumer-one"},
				},
			},
		})
	})

	consumers, err := broker.client().ConsumersForProviderWithTag(context.Background(), "MyProvider", "prod")
	require.NoError(t, err)
	require.Len(t, consumers, 1)
	assert.Equal(t, "prod", consumers[0].Tag)
}

func TestConsumersForUnknownProviderIsEmpty(t *testing.T) {
	broker := newFakeBroker(t)
	broker.serveIndex(t, map[string]string{})

	consumers, err := broker.client().ConsumersForProvider(context.Background(), "UnknownProvider")
	require.NoError(t, err)
	assert.Empty(t, consumers)

	consumers, err = broker.client().UntaggedConsumersForProvider(context.Background(), "UnknownProvider")
	require.NoError(t, err)
	assert.Empty(t, consumers)
}

func TestPactsForVerification(t *testing.T) {
	broker := newFakeBroker(t)
	broker.serveIndex(t, map[string]string{
		relPactsForVerification: "/pacts/provider/{provider}/for-verification",
	})
	broker.e.GET("/pacts/provider/:provider/for-verification", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"_embedded": map[string]interface{}{
				"pacts": []interface{}{
					map[string]interface{}{
						"shortDescription": "latest",
						"_links": map[string]interface{}{
							"self": map[string]interface{}{"href": "/pacts/42", "name": "consumer-one"},
						},
					},
				},
			},
		})
	})

	consumers, err := broker.client().PactsForVerification(context.Background(), "MyProvider")
	require.NoError(t, err)
	require.Len(t, consumers, 1)
	assert.Equal(t, "consumer-one", consumers[0].Name)
	assert.Equal(t, "/pacts/42", consumers[0].PactURL)
}

func TestProviderPactsURL(t *testing.T) {
	broker := newFakeBroker(t)
	broker.serveIndex(t, map[string]string{
		relLatestProviderPacts:        "/pacts/provider/{provider}/latest",
		relLatestProviderPactsWithTag: "/pacts/provider/{provider}/latest/{tag}",
	})
	client := broker.client()

	url, err := client.ProviderPactsURL(context.Background(), "MyProvider", "")
	require.NoError(t, err)
	assert.Equal(t, broker.server.URL+"/pacts/provider/MyProvider/latest", url)

	url, err = client.ProviderPactsURL(context.Background(), "MyProvider", "latest")
	require.NoError(t, err)
	assert.Equal(t, broker.server.URL+"/pacts/provider/MyProvider/latest", url)

	url, err = client.ProviderPactsURL(context.Background(), "MyProvider", "prod")
	require.NoError(t, err)
	assert.Equal(t, broker.server.URL+"/pacts/provider/MyProvider/latest/prod", url)

	// only the root document is ever fetched
	for _, request := range broker.requests {
		assert.Equal(t, "GET /", request)
	}
}

func TestFetchPact(t *testing.T) {
	broker := newFakeBroker(t)
	pactDoc := []byte(`{"consumer": {"name": "consumer-one"}, "provider": {"name": "MyProvider"}, "interactions": []}`)
	pactDoc, err := sjson.SetBytes(pactDoc, "_links.pb:publish-verification-results.href", broker.server.URL+"/publish")
	require.NoError(t, err)

	broker.e.GET("/pacts/42", func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, pactDoc)
	})

	pact, err := broker.client().FetchPact(context.Background(), broker.server.URL+"/pacts/42")
	require.NoError(t, err)
	assert.JSONEq(t, string(pactDoc), string(pact.PactFile))
	require.Contains(t, pact.Links, "pb:publish-verification-results")
}

func TestUploadPact(t *testing.T) {
	broker := newFakeBroker(t)

	var uploaded []byte
	broker.e.PUT("/pacticipants/:pacticipant/versions/:version/tags/:tag", func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	})
	broker.e.PUT("/pacts/provider/:provider/consumer/:consumer/version/:version", func(c echo.Context) error {
		uploaded, _ = ioutil.ReadAll(c.Request().Body)
		return c.NoContent(http.StatusCreated)
	})

	pact := `{"consumer": {"name": "consumer one"}, "provider": {"name": "My Provider"}, "interactions": []}`
	pactFile := filepath.Join(t.TempDir(), "pact.json")
	require.NoError(t, os.WriteFile(pactFile, []byte(pact), 0o600))

	err := broker.client().UploadPact(context.Background(), pactFile, "1.0.0", []string{"dev"})
	require.NoError(t, err)

	require.Equal(t, []string{
		"PUT /pacticipants/consumer%20one/versions/1.0.0/tags/dev",
		"PUT /pacts/provider/My%20Provider/consumer/consumer%20one/version/1.0.0",
	}, broker.requests)
	assert.JSONEq(t, pact, string(uploaded))
}

func TestUploadPactWithoutParticipants(t *testing.T) {
	broker := newFakeBroker(t)

	pactFile := filepath.Join(t.TempDir(), "pact.json")
	require.NoError(t, os.WriteFile(pactFile, []byte(`{"interactions": []}`), 0o600))

	err := broker.client().UploadPact(context.Background(), pactFile, "1.0.0", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider.name")
	assert.Empty(t, broker.requests)
}

func TestPublishVerificationResults(t *testing.T) {
	broker := newFakeBroker(t)

	var published []byte
	broker.e.POST("/publish", func(c echo.Context) error {
		published, _ = ioutil.ReadAll(c.Request().Body)
		return c.NoContent(http.StatusCreated)
	})

	pact := &PactResponse{Links: map[string]interface{}{
		relPublishVerificationResults: map[string]interface{}{"href": broker.server.URL + "/publish"},
	}}
	outcome := verification.NewFailure("body mismatch", verification.FromRecord(map[string]interface{}{
		"type":          "body",
		"interactionId": "i1",
		"comparison": map[string]interface{}{
			"$.a": []interface{}{map[string]interface{}{"mismatch": "X", "diff": "D"}},
		},
	}))

	err := broker.client().PublishVerificationResults(context.Background(), pact, outcome, "1.0.0", "https://ci.test/builds/42")
	require.NoError(t, err)

	payload := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(published, &payload))
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, "1.0.0", payload["providerApplicationVersion"])
	assert.Equal(t, "https://ci.test/builds/42", payload["buildUrl"])

	testResults := payload["testResults"].([]interface{})
	require.Len(t, testResults, 1)
	result := testResults[0].(map[string]interface{})
	assert.Equal(t, "i1", result["interactionId"])
	mismatches := result["mismatches"].([]interface{})
	require.Len(t, mismatches, 1)
	assert.Equal(t, "body", mismatches[0].(map[string]interface{})["attribute"])
}

func TestPublishVerificationResultsWithoutLink(t *testing.T) {
	broker := newFakeBroker(t)

	pact := &PactResponse{Links: map[string]interface{}{
		"self": map[string]interface{}{"href": "/pacts/42"},
	}}
	outcome := verification.NewFailure("verification failed", verification.StatusMismatch("", "expected 200 but was 500"))
	err := broker.client().PublishVerificationResults(context.Background(), pact, outcome, "1.0.0", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), relPublishVerificationResults)
	// the failure is detected before any call is made
	assert.Empty(t, broker.requests)
}

func TestTagProviderVersion(t *testing.T) {
	broker := newFakeBroker(t)
	broker.e.GET("/pacticipants/MyProvider", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"_links": map[string]interface{}{
				"pb:version-tag": map[string]interface{}{
					"href":      "/pacticipants/MyProvider/versions/{version}/tags/{tag}",
					"templated": true,
				},
			},
		})
	})
	var tagged []string
	broker.e.PUT("/pacticipants/MyProvider/versions/:version/tags/:tag", func(c echo.Context) error {
		tagged = append(tagged, c.Param("tag"))
		return c.NoContent(http.StatusCreated)
	})

	pact := &PactResponse{Links: map[string]interface{}{
		relProvider: map[string]interface{}{"href": "/pacticipants/MyProvider"},
	}}
	broker.client().TagProviderVersion(context.Background(), pact, "1.0.0", []string{"prod", "blue green"})

	assert.Equal(t, []string{"prod", "blue green"}, tagged)
	assert.Contains(t, broker.requests, "PUT /pacticipants/MyProvider/versions/1.0.0/tags/blue%20green")
}

func TestTagProviderVersionIsBestEffort(t *testing.T) {
	broker := newFakeBroker(t)

	pact := &PactResponse{Links: map[string]interface{}{
		"self": map[string]interface{}{"href": "/pacts/42"},
	}}
	// missing pb:provider relation is logged, never propagated
	broker.client().TagProviderVersion(context.Background(), pact, "1.0.0", []string{"prod"})
	assert.Empty(t, broker.requests)
}
