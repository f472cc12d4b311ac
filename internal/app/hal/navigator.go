package hal

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Requester is the transport capability the navigator needs. Implemented by
// transport.Client; tests supply fakes.
type Requester interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Step is one hop in a navigation chain: the relation to follow and the
// values for its template variables, if any.
type Step struct {
	Variables map[string]string
	Relation  string
}

// Navigator walks chains of named relations across HAL documents. It holds no
// per-call state and is safe for concurrent use.
type Navigator struct {
	requester Requester
	baseURL   string
}

func NewNavigator(requester Requester, baseURL string) *Navigator {
	return &Navigator{
		requester: requester,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
	}
}

// Navigate fetches the root document and follows each step in order. With no
// steps it returns a context over the root document itself.
func (n *Navigator) Navigate(ctx context.Context, rootURL string, steps ...Step) (*Context, error) {
	resolved := n.resolve(rootURL)
	doc, err := n.fetch(ctx, resolved)
	if err != nil {
		return nil, err
	}
	return n.NavigateFrom(ctx, doc, steps...)
}

// NavigateFrom follows steps starting at an already-fetched document.
func (n *Navigator) NavigateFrom(ctx context.Context, doc *Document, steps ...Step) (*Context, error) {
	current := &Context{navigator: n, document: doc}
	for _, step := range steps {
		next, err := current.follow(ctx, step)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

func (n *Navigator) fetch(ctx context.Context, url string) (*Document, error) {
	body, err := n.requester.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	return ParseDocument(body)
}

// resolve prefixes relative hrefs with the broker base URL. Absolute hrefs
// pass through untouched.
func (n *Navigator) resolve(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return n.baseURL + href
}

// Context is the state after a navigation step: the current document plus the
// navigator that produced it. A Context is owned by the call stack that
// created it and is never shared.
type Context struct {
	navigator *Navigator
	document  *Document
	url       string
}

func (c *Context) Document() *Document {
	return c.document
}

// URL is the resolved URL the current document was fetched from; empty for a
// context built from an in-memory document.
func (c *Context) URL() string {
	return c.url
}

func (c *Context) follow(ctx context.Context, step Step) (*Context, error) {
	href, err := c.LinkURL(step.Variables, step.Relation)
	if err != nil {
		return nil, err
	}
	log.WithField("relation", step.Relation).Debugf("following link %s", href)

	doc, err := c.navigator.fetch(ctx, href)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to fetch relation '%s'", step.Relation)
	}
	return &Context{navigator: c.navigator, document: doc, url: href}, nil
}

// LinkURL resolves a relation of the current document to a ready-to-fetch URL
// without fetching it.
func (c *Context) LinkURL(variables map[string]string, relation string) (string, error) {
	link, err := c.document.Relation(relation)
	if err != nil {
		return "", err
	}

	href := DecodeHref(link.Href)
	if link.Templated {
		href, err = expandTemplate(href, variables)
		if err != nil {
			return "", errors.Wrapf(err, "unable to resolve relation '%s'", relation)
		}
	}
	return c.navigator.resolve(href), nil
}

// ForAll visits every link of an embedded collection in the current document.
func (c *Context) ForAll(relation string, visit func(Link) error) error {
	links, err := c.document.Collection(relation)
	if err != nil {
		return err
	}
	for _, link := range links {
		if err := visit(link); err != nil {
			return err
		}
	}
	return nil
}
