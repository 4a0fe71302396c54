// Package registry holds the static catalog of integrations the tool can
// generate documentation screenshots for, along with the per-integration
// screenshot configurations. The catalog is read-only process-wide state,
// built once before any CLI logic runs.
package registry

import (
	"fmt"
	"sort"
	"strings"
)

// Kind distinguishes how an integration delivers its message. The set is
// closed: webhook integrations receive an HTTP POST from the third-party
// service, direct integrations post through the chat API as a bot.
type Kind string

const (
	KindWebhook Kind = "webhook"
	KindDirect  Kind = "direct"
)

// HeaderRule returns the HTTP headers the integration expects for a given
// fixture. Keys may carry the transport prefix ("HTTP_X_GITHUB_EVENT");
// the header resolver canonicalizes them.
type HeaderRule func(fixtureName string) map[string]string

// ScreenshotConfig describes one screenshot to generate for an integration.
type ScreenshotConfig struct {
	FixtureName         string            `yaml:"fixture_name"`
	ImageName           string            `yaml:"image_name"`
	ImageDir            string            `yaml:"image_dir"`
	BotName             string            `yaml:"bot_name"`
	UseBasicAuth        bool              `yaml:"use_basic_auth"`
	PayloadAsQueryParam bool              `yaml:"payload_as_query_param"`
	PayloadParamName    string            `yaml:"payload_param_name"`
	CustomHeaders       map[string]string `yaml:"custom_headers"`
	ExtraParams         map[string]string `yaml:"extra_params"`
}

// Validate checks invariants that must hold before any request is built.
// PayloadAsQueryParam and PayloadParamName only make sense together.
func (c ScreenshotConfig) Validate() error {
	if c.PayloadAsQueryParam && c.PayloadParamName == "" {
		return fmt.Errorf("payload_as_query_param is set but payload_param_name is empty")
	}
	if !c.PayloadAsQueryParam && c.PayloadParamName != "" {
		return fmt.Errorf("payload_param_name %q is set without payload_as_query_param", c.PayloadParamName)
	}
	return nil
}

// Integration identifies a third-party service known to the tool.
// Immutable after registration.
type Integration struct {
	Name          string
	DisplayName   string
	Kind          Kind
	Stream        string // target stream; empty falls back to the default
	URLPath       string // webhook endpoint path, webhook kind only
	BotAvatarPath string // optional on-disk avatar image
	Headers       HeaderRule
	Configs       []ScreenshotConfig
}

// IsWebhook reports whether the integration is triggered by an inbound
// HTTP request rather than posting through the chat API itself.
func (i *Integration) IsWebhook() bool {
	return i.Kind == KindWebhook
}

// Registry is an ordered, name-indexed set of integrations.
type Registry struct {
	byName map[string]*Integration
	order  []string
}

func New() *Registry {
	return &Registry{byName: make(map[string]*Integration)}
}

// Register adds an integration, replacing any previous entry with the
// same name while keeping its original position in the order.
func (r *Registry) Register(i *Integration) {
	if _, exists := r.byName[i.Name]; !exists {
		r.order = append(r.order, i.Name)
	}
	r.byName[i.Name] = i
}

func (r *Registry) Get(name string) (*Integration, bool) {
	i, ok := r.byName[name]
	return i, ok
}

// Names returns integration names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns every integration in registration order.
func (r *Registry) All() []*Integration {
	out := make([]*Integration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// From returns the integrations at or after the named one in registration
// order. Unknown names are an error.
func (r *Registry) From(name string) ([]*Integration, error) {
	for idx, n := range r.order {
		if n == name {
			out := make([]*Integration, 0, len(r.order)-idx)
			for _, m := range r.order[idx:] {
				out = append(out, r.byName[m])
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("unknown integration %q", name)
}

func (r *Registry) Len() int {
	return len(r.order)
}

// staticHeaders wraps a fixed header map into a HeaderRule.
func staticHeaders(h map[string]string) HeaderRule {
	return func(string) map[string]string {
		out := make(map[string]string, len(h))
		for k, v := range h {
			out[k] = v
		}
		return out
	}
}

// eventFromFixture derives an event header value from a fixture name of
// the form "event__variant", e.g. "push__multiple_commits" -> "push".
func eventFromFixture(fixtureName string) string {
	if idx := strings.Index(fixtureName, "__"); idx > 0 {
		return fixtureName[:idx]
	}
	return fixtureName
}

// Builtin returns the built-in integration catalog. Entries are sorted by
// name so batch runs are deterministic.
func Builtin() *Registry {
	integrations := []*Integration{
		{
			Name:        "github",
			DisplayName: "GitHub",
			Kind:        KindWebhook,
			Stream:      "github",
			URLPath:     "/api/v1/external/github",
			Headers: func(fixtureName string) map[string]string {
				return map[string]string{
					"HTTP_X_GITHUB_EVENT": eventFromFixture(fixtureName),
				}
			},
			Configs: []ScreenshotConfig{
				{FixtureName: "push__1_commit.json"},
			},
		},
		{
			Name:        "gitlab",
			DisplayName: "GitLab",
			Kind:        KindWebhook,
			Stream:      "gitlab",
			URLPath:     "/api/v1/external/gitlab",
			Headers: func(fixtureName string) map[string]string {
				return map[string]string{
					"HTTP_X_GITLAB_EVENT": "Push Hook",
				}
			},
			Configs: []ScreenshotConfig{
				{FixtureName: "push_hook.json"},
			},
		},
		{
			Name:        "sentry",
			DisplayName: "Sentry",
			Kind:        KindWebhook,
			Stream:      "sentry",
			URLPath:     "/api/v1/external/sentry",
			Configs: []ScreenshotConfig{
				{FixtureName: "event_for_exception_python.json"},
			},
		},
		{
			Name:        "circleci",
			DisplayName: "CircleCI",
			Kind:        KindWebhook,
			Stream:      "circleci",
			URLPath:     "/api/v1/external/circleci",
			Headers:     staticHeaders(map[string]string{"HTTP_X_CIRCLECI_EVENT": "workflow-completed"}),
			Configs: []ScreenshotConfig{
				{FixtureName: "github_job_completed.json"},
			},
		},
		{
			Name:        "pagerduty",
			DisplayName: "PagerDuty",
			Kind:        KindWebhook,
			Stream:      "pagerduty",
			URLPath:     "/api/v1/external/pagerduty",
			Configs: []ScreenshotConfig{
				{FixtureName: "trigger_v2.json"},
			},
		},
		{
			Name:        "slack",
			DisplayName: "Slack",
			Kind:        KindWebhook,
			Stream:      "slack",
			URLPath:     "/api/v1/external/slack",
			Configs: []ScreenshotConfig{
				// Slack posts outgoing webhooks as form-encoded text.
				{FixtureName: "message_info.multipart"},
			},
		},
		{
			Name:        "capistrano",
			DisplayName: "Capistrano",
			Kind:        KindDirect,
			Stream:      "capistrano",
			Configs: []ScreenshotConfig{
				{FixtureName: "capistrano_deploy.json"},
			},
		},
		{
			Name:        "discourse",
			DisplayName: "Discourse",
			Kind:        KindDirect,
			Stream:      "discourse",
			Configs: []ScreenshotConfig{
				{FixtureName: "discourse_notification.json"},
			},
		},
	}

	sort.Slice(integrations, func(a, b int) bool {
		return integrations[a].Name < integrations[b].Name
	})

	r := New()
	for _, i := range integrations {
		r.Register(i)
	}
	return r
}
