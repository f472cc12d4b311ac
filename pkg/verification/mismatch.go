package verification

import (
	"fmt"
	"sort"
)

// Kind discriminates mismatch records. The set is closed; records with an
// unrecognised type fall into KindOther.
type Kind string

const (
	KindBody     Kind = "body"
	KindStatus   Kind = "status"
	KindHeader   Kind = "header"
	KindMetadata Kind = "metadata"
	KindOther    Kind = "other"
)

// Mismatch is one verification discrepancy, converted from the verifier's
// loosely-typed records at the JSON boundary. The fields beyond the
// discriminator are kind-specific.
type Mismatch struct {
	Kind Kind

	// InteractionID attributes the mismatch to one interaction of the pact.
	// Empty means the verifier could not attribute it.
	InteractionID string

	// Comparison holds the body comparison structure for KindBody: a map of
	// JSON path to detected differences, or anything else the verifier
	// produced.
	Comparison interface{}

	// Description holds the status description for KindStatus.
	Description string

	// Fields holds the remaining record fields for header, metadata and
	// unknown kinds, with type and interactionId already stripped.
	Fields map[string]interface{}

	// RawKind preserves the record's original type value for KindOther.
	RawKind string

	// Exception, when set, removes the record from the mismatch list; it is
	// reported under the interaction group's exceptions instead.
	Exception *Exception
}

// Exception is an execution error raised while verifying an interaction.
type Exception struct {
	Message string
	Class   string
}

func BodyMismatch(interactionID string, comparison interface{}) Mismatch {
	return Mismatch{Kind: KindBody, InteractionID: interactionID, Comparison: comparison}
}

func StatusMismatch(interactionID, description string) Mismatch {
	return Mismatch{Kind: KindStatus, InteractionID: interactionID, Description: description}
}

func HeaderMismatch(interactionID string, fields map[string]interface{}) Mismatch {
	return Mismatch{Kind: KindHeader, InteractionID: interactionID, Fields: fields}
}

func MetadataMismatch(interactionID string, fields map[string]interface{}) Mismatch {
	return Mismatch{Kind: KindMetadata, InteractionID: interactionID, Fields: fields}
}

// ExecutionError records an error raised while verifying an interaction, as
// opposed to a comparison mismatch.
func ExecutionError(interactionID string, err error) Mismatch {
	return Mismatch{
		Kind:          KindOther,
		InteractionID: interactionID,
		Exception: &Exception{
			Message: err.Error(),
			Class:   fmt.Sprintf("%T", err),
		},
	}
}

// FromRecord converts one raw verifier record. Beyond best-effort field
// presence nothing is validated; unknown fields are preserved.
func FromRecord(record map[string]interface{}) Mismatch {
	m := Mismatch{Fields: map[string]interface{}{}}
	for key, value := range record {
		switch key {
		case "type":
			if s, ok := value.(string); ok {
				m.RawKind = s
			}
		case "interactionId":
			if s, ok := value.(string); ok {
				m.InteractionID = s
			}
		case "exception":
			m.Exception = exceptionFromValue(value)
		default:
			m.Fields[key] = value
		}
	}

	switch m.RawKind {
	case "body":
		m.Kind = KindBody
		m.Comparison = m.Fields["comparison"]
		delete(m.Fields, "comparison")
	case "status":
		m.Kind = KindStatus
		if s, ok := m.Fields["description"].(string); ok {
			m.Description = s
		}
		delete(m.Fields, "description")
	case "header":
		m.Kind = KindHeader
	case "metadata":
		m.Kind = KindMetadata
	default:
		m.Kind = KindOther
	}
	return m
}

// exceptionFromValue accepts either a structured error object with message
// and class, or any other value stringified as the message.
func exceptionFromValue(value interface{}) *Exception {
	if m, ok := value.(map[string]interface{}); ok {
		e := &Exception{}
		if msg, ok := m["message"].(string); ok {
			e.Message = msg
		}
		if class, ok := m["class"].(string); ok {
			e.Class = class
		}
		return e
	}
	return &Exception{Message: fmt.Sprintf("%v", value)}
}

// entries expands a mismatch into the broker's testResults mismatch objects.
func (m Mismatch) entries() []map[string]interface{} {
	switch m.Kind {
	case KindBody:
		return m.bodyEntries()
	case KindStatus:
		return []map[string]interface{}{{
			"attribute":   "status",
			"description": m.Description,
		}}
	case KindHeader:
		entry := map[string]interface{}{"attribute": "header"}
		for k, v := range m.Fields {
			entry[k] = v
		}
		return []map[string]interface{}{entry}
	case KindMetadata:
		entries := make([]map[string]interface{}, 0, len(m.Fields))
		for _, key := range sortedKeys(m.Fields) {
			entries = append(entries, map[string]interface{}{
				"attribute":   "metadata",
				"identifier":  key,
				"description": m.Fields[key],
			})
		}
		return entries
	}

	entry := make(map[string]interface{}, len(m.Fields))
	for k, v := range m.Fields {
		entry[k] = v
	}
	return []map[string]interface{}{entry}
}

// bodyEntries flattens a body comparison map into one entry per difference,
// skipping the top-level diff key. A comparison that is not a map at all is
// reported as a single stringified entry.
func (m Mismatch) bodyEntries() []map[string]interface{} {
	comparison, ok := m.Comparison.(map[string]interface{})
	if !ok {
		return []map[string]interface{}{{
			"attribute":   "body",
			"description": fmt.Sprintf("%v", m.Comparison),
		}}
	}

	var entries []map[string]interface{}
	for _, path := range sortedKeys(comparison) {
		if path == "diff" {
			continue
		}
		for _, item := range comparisonItems(comparison[path]) {
			entry := map[string]interface{}{
				"attribute":   "body",
				"identifier":  path,
				"description": item["mismatch"],
			}
			if diff, ok := item["diff"]; ok {
				entry["diff"] = diff
			}
			entries = append(entries, entry)
		}
	}
	return entries
}

func comparisonItems(value interface{}) []map[string]interface{} {
	switch v := value.(type) {
	case []interface{}:
		items := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				items = append(items, m)
			}
		}
		return items
	case map[string]interface{}:
		return []map[string]interface{}{v}
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
