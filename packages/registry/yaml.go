package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlIntegration is the on-disk form of an integration entry. A registry
// file lets documentation maintainers add integrations or override the
// built-in catalog without recompiling.
type yamlIntegration struct {
	Name        string             `yaml:"name"`
	DisplayName string             `yaml:"display_name"`
	Kind        string             `yaml:"kind"`
	Stream      string             `yaml:"stream"`
	URLPath     string             `yaml:"url_path"`
	BotAvatar   string             `yaml:"bot_avatar"`
	Headers     yamlHeaders        `yaml:"headers"`
	Screenshots []ScreenshotConfig `yaml:"screenshots"`
}

type yamlHeaders struct {
	Default   map[string]string            `yaml:"default"`
	ByFixture map[string]map[string]string `yaml:"by_fixture"`
}

type yamlRegistry struct {
	Integrations []yamlIntegration `yaml:"integrations"`
}

// LoadFile merges a YAML registry file into r. Entries with known names
// replace the built-in definition; new names are appended in file order.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc yamlRegistry
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid registry file %s: %w", path, err)
	}

	for _, y := range doc.Integrations {
		i, err := y.toIntegration()
		if err != nil {
			return fmt.Errorf("registry file %s: %w", path, err)
		}
		r.Register(i)
	}

	return nil
}

func (y yamlIntegration) toIntegration() (*Integration, error) {
	if y.Name == "" {
		return nil, fmt.Errorf("integration entry is missing a name")
	}

	kind := Kind(y.Kind)
	switch kind {
	case KindWebhook, KindDirect:
	case "":
		kind = KindWebhook
	default:
		return nil, fmt.Errorf("integration %q: unknown kind %q", y.Name, y.Kind)
	}

	if kind == KindWebhook && y.URLPath == "" {
		return nil, fmt.Errorf("integration %q: webhook integrations need a url_path", y.Name)
	}

	for _, cfg := range y.Screenshots {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("integration %q: %w", y.Name, err)
		}
	}

	display := y.DisplayName
	if display == "" {
		display = y.Name
	}

	headers := y.Headers
	return &Integration{
		Name:          y.Name,
		DisplayName:   display,
		Kind:          kind,
		Stream:        y.Stream,
		URLPath:       y.URLPath,
		BotAvatarPath: y.BotAvatar,
		Headers: func(fixtureName string) map[string]string {
			out := make(map[string]string, len(headers.Default))
			for k, v := range headers.Default {
				out[k] = v
			}
			for k, v := range headers.ByFixture[fixtureName] {
				out[k] = v
			}
			return out
		},
		Configs: y.Screenshots,
	}, nil
}
