package fixture

import (
	"fmt"
	"strings"

	"github.com/teamchat/docshots/packages/registry"
	"github.com/tidwall/gjson"
)

// transportPrefix marks header keys recorded in their server-side
// transport form, e.g. "HTTP_X_GITHUB_EVENT".
const transportPrefix = "HTTP_"

// CanonicalHeaderName turns a transport-form key into its wire name:
// the prefix is stripped and underscores become hyphens. Keys without the
// prefix pass through unchanged.
func CanonicalHeaderName(key string) string {
	if !strings.HasPrefix(key, transportPrefix) {
		return key
	}
	return strings.ReplaceAll(strings.TrimPrefix(key, transportPrefix), "_", "-")
}

// ResolveHeaders returns the headers the integration expects for the given
// fixture, canonicalized, with custom headers merged on top. Custom
// headers silently override expected ones of the same name.
func ResolveHeaders(i *registry.Integration, fixtureName string, custom map[string]string) map[string]string {
	headers := make(map[string]string)

	if i.Headers != nil {
		for k, v := range i.Headers(fixtureName) {
			headers[CanonicalHeaderName(k)] = v
		}
	}

	for k, v := range custom {
		headers[k] = v
	}

	return headers
}

// ParseCustomHeaders decodes the --custom-headers flag value, a JSON
// object mapping header names to values. Malformed input is a
// configuration error surfaced before any network call.
func ParseCustomHeaders(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}

	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("custom headers are not valid JSON: %s", raw)
	}

	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("custom headers must be a JSON object, got: %s", raw)
	}

	headers := make(map[string]string)
	parsed.ForEach(func(key, value gjson.Result) bool {
		headers[key.String()] = value.String()
		return true
	})

	return headers, nil
}
