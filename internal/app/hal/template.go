package hal

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var templateVariable = regexp.MustCompile(`\{([^{}]+)\}`)

// expandTemplate substitutes every {variable} placeholder in a templated
// href, escaping each value as a URL path segment. A placeholder without a
// supplied value is a caller bug, not a broker condition, and fails hard.
func expandTemplate(href string, variables map[string]string) (string, error) {
	var missing []string
	expanded := templateVariable.ReplaceAllStringFunc(href, func(match string) string {
		name := strings.Trim(match, "{}")
		value, ok := variables[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return url.PathEscape(value)
	})
	if len(missing) > 0 {
		return "", errors.Errorf("no value for template variable(s) '%s' in href '%s'", strings.Join(missing, "', '"), href)
	}
	return expanded, nil
}

// DecodeHref undoes percent-encoding on hrefs that brokers have historically
// served double-encoded. url.PathUnescape is the one canonical decoder here;
// hrefs that do not decode cleanly are used as-is.
func DecodeHref(href string) string {
	decoded, err := url.PathUnescape(href)
	if err != nil {
		return href
	}
	return decoded
}
