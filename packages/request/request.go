// Package request assembles the outbound HTTP request that replays a
// fixture against a webhook endpoint of the locally running application.
package request

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/teamchat/docshots/packages/fixture"
	"github.com/teamchat/docshots/packages/registry"
	"github.com/tidwall/gjson"
)

// DefaultStream is the stream webhook messages land in when the
// integration does not name one.
const DefaultStream = "devel"

// Encoding is how the fixture payload rides on the outbound request.
type Encoding int

const (
	// EncodingForm sends a form-encoded body built from multipart fields.
	EncodingForm Encoding = iota
	// EncodingQueryPairs parses pre-encoded "a=1&b=2" fixture text into
	// query parameters; the request carries no body.
	EncodingQueryPairs
	// EncodingRawText sends plain fixture text as the body verbatim.
	EncodingRawText
	// EncodingQueryParam serializes the JSON payload into a single query
	// parameter; the request carries no body.
	EncodingQueryParam
	// EncodingJSON sends the JSON payload as the request body.
	EncodingJSON
)

func (e Encoding) String() string {
	switch e {
	case EncodingForm:
		return "form"
	case EncodingQueryPairs:
		return "query-pairs"
	case EncodingRawText:
		return "raw-text"
	case EncodingQueryParam:
		return "query-param"
	default:
		return "json"
	}
}

// Request is the fully assembled outbound request. Built once per fixture,
// consumed immediately by delivery, then discarded. Method is always POST.
type Request struct {
	URL         string
	QueryParams map[string]string
	Headers     map[string]string
	Body        []byte
	Encoding    Encoding
}

// TargetURL returns the request URL with the merged query parameters
// appended.
func (r *Request) TargetURL() string {
	if len(r.QueryParams) == 0 {
		return r.URL
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}

	q := u.Query()
	for k, v := range r.QueryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Decide picks the payload encoding for a fixture and config, evaluated in
// fixed priority order. Kept as a standalone function so each branch is
// unit-testable on its own.
func Decide(f *fixture.Fixture, cfg registry.ScreenshotConfig) Encoding {
	switch {
	case f.Multipart:
		return EncodingForm
	case !f.JSON && !f.IsEmpty():
		if strings.Contains(f.BodyString(), "&") {
			return EncodingQueryPairs
		}
		return EncodingRawText
	case cfg.PayloadAsQueryParam:
		return EncodingQueryParam
	default:
		return EncodingJSON
	}
}

// Build assembles the outbound request for a webhook integration. headers
// should already be resolved (expected headers plus custom overrides);
// botEmail and apiKey identify the bot the message will be sent as.
func Build(baseURL string, i *registry.Integration, f *fixture.Fixture, cfg registry.ScreenshotConfig, headers map[string]string, botEmail, apiKey string) (*Request, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stream := i.Stream
	if stream == "" {
		stream = DefaultStream
	}

	params := map[string]string{
		"api_key": apiKey,
		"stream":  stream,
	}
	for k, v := range cfg.ExtraParams {
		params[k] = v
	}

	target := baseURL + i.URLPath
	if _, err := url.Parse(target); err != nil {
		return nil, fmt.Errorf("invalid webhook URL %q: %w", target, err)
	}

	r := &Request{
		URL:         target,
		QueryParams: params,
		Headers:     make(map[string]string, len(headers)+2),
		Encoding:    Decide(f, cfg),
	}
	for k, v := range headers {
		r.Headers[k] = v
	}

	switch r.Encoding {
	case EncodingForm:
		form := url.Values{}
		for k, v := range f.Fields {
			form.Set(k, v)
		}
		r.Body = []byte(form.Encode())
		setDefaultContentType(r, "application/x-www-form-urlencoded")

	case EncodingQueryPairs:
		// The fixture is pre-encoded query text; its pairs go under the
		// base parameters, which win on collision.
		pairs := ParsePairs(f.BodyString())
		for k, v := range pairs {
			if _, taken := r.QueryParams[k]; !taken {
				r.QueryParams[k] = v
			}
		}

	case EncodingRawText:
		r.Body = f.Body

	case EncodingQueryParam:
		r.QueryParams[cfg.PayloadParamName] = compactJSON(f.Body)

	case EncodingJSON:
		r.Body = f.Body
		setDefaultContentType(r, "application/json")
	}

	if cfg.UseBasicAuth {
		creds := botEmail + ":" + apiKey
		r.Headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
	}

	return r, nil
}

func setDefaultContentType(r *Request, ct string) {
	for k := range r.Headers {
		if strings.EqualFold(k, "Content-Type") {
			return
		}
	}
	r.Headers["Content-Type"] = ct
}

// ParseExtraParams decodes the --extra-params flag value, a JSON object
// of additional query parameters. Malformed input is a configuration
// error surfaced before any network call.
func ParseExtraParams(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}

	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("extra params are not valid JSON: %s", raw)
	}

	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("extra params must be a JSON object, got: %s", raw)
	}

	params := make(map[string]string)
	parsed.ForEach(func(key, value gjson.Result) bool {
		params[key.String()] = value.String()
		return true
	})

	return params, nil
}

// ParsePairs splits pre-encoded "a=1&b=2" text into a key/value map.
func ParsePairs(body string) map[string]string {
	result := make(map[string]string)
	for _, pair := range strings.Split(strings.TrimSpace(body), "&") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			key, _ := url.QueryUnescape(kv[0])
			value, _ := url.QueryUnescape(kv[1])
			result[key] = value
		}
	}
	return result
}

// compactJSON minifies a JSON document for query-string transport.
func compactJSON(data []byte) string {
	if ugly := gjson.GetBytes(data, "@ugly"); ugly.Exists() {
		return ugly.Raw
	}
	return string(data)
}
