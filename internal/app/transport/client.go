package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	defaultTimeout = 30 * time.Second
	retryAttempts  = 3
	retryDelay     = 250 * time.Millisecond
)

// Options carries the immutable settings attached to every broker call.
type Options struct {
	Username string
	Password string
	Token    string
	Timeout  time.Duration
}

// Client is the HTTP collaborator for the broker. It owns the base URL, the
// credentials and the retry policy, and exchanges JSON bodies. Retry, timeout
// and cancellation live here, not in the navigation core.
type Client struct {
	baseURL string
	client  *http.Client
	options Options
}

func New(baseURL string, options Options) *Client {
	timeout := options.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		options: options,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get fetches a JSON document, retrying transient failures. 4xx responses are
// not retried.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := retry.Do(
		func() error {
			var err error
			body, err = c.get(ctx, url)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
	)
	return body, err
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(url), nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create request")
	}
	req.Header.Set("Accept", "application/hal+json, application/json")
	c.authorize(req)

	log.Debugf("GET %s", req.URL)
	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read response body")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		err := brokerError(http.MethodGet, url, res.StatusCode, body)
		if res.StatusCode >= 400 && res.StatusCode < 500 {
			return nil, retry.Unrecoverable(err)
		}
		return nil, err
	}
	return body, nil
}

// Put sends body as JSON; a nil body sends an empty JSON object, which the
// broker expects on tag creation.
func (c *Client) Put(ctx context.Context, url string, body interface{}) error {
	return c.send(ctx, http.MethodPut, url, body)
}

func (c *Client) Post(ctx context.Context, url string, body interface{}) error {
	return c.send(ctx, http.MethodPost, url, body)
}

func (c *Client) send(ctx context.Context, method, url string, body interface{}) error {
	var payload io.Reader
	switch b := body.(type) {
	case nil:
		payload = strings.NewReader("{}")
	case json.RawMessage:
		payload = bytes.NewReader(b)
	case []byte:
		payload = bytes.NewReader(b)
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "unable to encode request body")
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(url), payload)
	if err != nil {
		return errors.Wrap(err, "unable to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/hal+json, application/json")
	c.authorize(req)

	log.Debugf("%s %s", method, req.URL)
	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		resBody, _ := ioutil.ReadAll(res.Body)
		return brokerError(method, url, res.StatusCode, resBody)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.options.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.options.Token)
		return
	}
	if c.options.Username != "" {
		req.SetBasicAuth(c.options.Username, c.options.Password)
	}
}

func (c *Client) resolve(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return c.baseURL + url
}

// brokerError summarises a non-2xx response, picking up the message the
// broker puts in its error body when there is one.
func brokerError(method, url string, status int, body []byte) error {
	for _, path := range []string{"errors", "error.message", "error", "message"} {
		if result := gjson.GetBytes(body, path); result.Exists() {
			return errors.Errorf("%s %s returned %d: %s", method, url, status, result.String())
		}
	}
	return errors.Errorf("%s %s returned %d", method, url, status)
}
