package hal

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Document is a single HAL response body. The _links section is parsed into
// relation descriptors on load; every other field stays as decoded JSON.
// Documents are immutable once parsed.
type Document struct {
	fields map[string]interface{}
	links  map[string][]Link
}

// Link is one entry of a document's _links section.
type Link struct {
	Href      string
	Templated bool
	Name      string
	Title     string
}

func ParseDocument(data []byte) (*Document, error) {
	fields := make(map[string]interface{})
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrap(err, "unable to parse HAL document")
	}
	return DocumentFromFields(fields), nil
}

// DocumentFromFields builds a Document from already-decoded JSON.
func DocumentFromFields(fields map[string]interface{}) *Document {
	doc := &Document{fields: fields, links: map[string][]Link{}}
	rawLinks, ok := fields["_links"].(map[string]interface{})
	if !ok {
		return doc
	}
	for rel, value := range rawLinks {
		if links := decodeLinks(value); len(links) > 0 {
			doc.links[rel] = links
		}
	}
	return doc
}

// DocumentFromLinks treats an already-decoded _links map as a document of its
// own, so navigation can start from the links of a previously fetched pact.
func DocumentFromLinks(links map[string]interface{}) *Document {
	return DocumentFromFields(map[string]interface{}{"_links": links})
}

// decodeLinks accepts a single link object or an array of them. Both shapes
// appear in broker responses.
func decodeLinks(value interface{}) []Link {
	switch v := value.(type) {
	case map[string]interface{}:
		return []Link{decodeLink(v)}
	case []interface{}:
		links := make([]Link, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				links = append(links, decodeLink(m))
			}
		}
		return links
	}
	return nil
}

func decodeLink(m map[string]interface{}) Link {
	link := Link{}
	if href, ok := m["href"].(string); ok {
		link.Href = href
	}
	if templated, ok := m["templated"].(bool); ok {
		link.Templated = templated
	}
	if name, ok := m["name"].(string); ok {
		link.Name = name
	}
	if title, ok := m["title"].(string); ok {
		link.Title = title
	}
	if link.Href == "" {
		// Embedded collection entries carry their href on a nested self link.
		if links, ok := m["_links"].(map[string]interface{}); ok {
			if self, ok := links["self"].(map[string]interface{}); ok {
				link.Href, _ = self["href"].(string)
				if link.Name == "" {
					link.Name, _ = self["name"].(string)
				}
			}
		}
	}
	return link
}

// Relation returns the single link stored under a relation name.
func (d *Document) Relation(name string) (Link, error) {
	links, ok := d.links[name]
	if !ok || len(links) == 0 {
		return Link{}, &RelationNotFoundError{Relation: name}
	}
	return links[0], nil
}

// Collection returns the links of an embedded collection, looking first in
// _links, then _embedded, then the top-level document fields.
func (d *Document) Collection(name string) ([]Link, error) {
	if links, ok := d.links[name]; ok {
		return links, nil
	}
	if embedded, ok := d.fields["_embedded"].(map[string]interface{}); ok {
		if links := decodeLinks(embedded[name]); len(links) > 0 {
			return links, nil
		}
	}
	if links := decodeLinks(d.fields[name]); len(links) > 0 {
		return links, nil
	}
	return nil, &RelationNotFoundError{Relation: name}
}

// Fields returns the decoded document body, _links included.
func (d *Document) Fields() map[string]interface{} {
	return d.fields
}
