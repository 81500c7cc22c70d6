package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"organigramm/internal/orgchart"
)

// FileName is the practice config file looked up in a workspace.
const FileName = "orgchart.yml"

// Config models orgchart.yml. It is stored per practice as JSON as well, so
// every field carries both tags.
type Config struct {
	Practice struct {
		ID   string `yaml:"id" json:"id" validate:"required"`
		Name string `yaml:"name" json:"name"`
	} `yaml:"practice" json:"practice"`
	Chart    Chart             `yaml:"chart" json:"chart"`
	Roles    map[string]string `yaml:"roles,omitempty" json:"roles,omitempty" validate:"dive,keys,required,endkeys,hexcolor"`
	Webhooks []Webhook         `yaml:"webhooks,omitempty" json:"webhooks,omitempty" validate:"dive"`
}

// Chart is the canvas geometry used by the chart endpoint.
type Chart struct {
	NodeWidth     int `yaml:"node_width" json:"node_width" validate:"gte=40"`
	NodeHeight    int `yaml:"node_height" json:"node_height" validate:"gte=20"`
	HorizontalGap int `yaml:"horizontal_gap" json:"horizontal_gap" validate:"gte=0"`
	VerticalGap   int `yaml:"vertical_gap" json:"vertical_gap" validate:"gte=2"`
	RootGap       int `yaml:"root_gap" json:"root_gap" validate:"gte=0"`
	StemHeight    int `yaml:"stem_height" json:"stem_height" validate:"gte=1,ltfield=VerticalGap"`
}

// Webhook receives position events for one practice.
type Webhook struct {
	URL            string   `yaml:"url" json:"url" validate:"required,url"`
	Events         []string `yaml:"events" json:"events,omitempty" validate:"dive,required"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
	Secret         string   `yaml:"secret" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty" validate:"gte=0,lte=60"`
}

// IsEnabled treats a missing flag as enabled.
func (w Webhook) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// Wants reports whether the webhook subscribes to evtType. An empty list
// subscribes to everything; "position.*" matches every position event.
func (w Webhook) Wants(evtType string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == evtType || e == "*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(e, ".*"); ok && strings.HasPrefix(evtType, prefix+".") {
			return true
		}
	}
	return false
}

var validate = validator.New()

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%s failed %q validation", strings.ToLower(f.Namespace()), f.Tag())
		}
		return err
	}
	return nil
}

// Spacing converts the chart geometry into layout spacing.
func (c *Config) Spacing() orgchart.Spacing {
	return orgchart.Spacing{
		HGap:       c.Chart.HorizontalGap,
		VGap:       c.Chart.VerticalGap,
		RootGap:    c.Chart.RootGap,
		Margin:     orgchart.CanvasSpacing.Margin,
		StemHeight: c.Chart.StemHeight,
	}
}

// NodeSize measures every canvas card with the configured node size.
func (c *Config) NodeSize() orgchart.SizeFunc {
	return orgchart.FixedSize(c.Chart.NodeWidth, c.Chart.NodeHeight)
}

// Palette is the default palette with the configured role colors applied.
func (c *Config) Palette() orgchart.Palette {
	return orgchart.DefaultPalette.Merge(c.Roles)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(practiceID, name string) string {
	if name == "" {
		name = practiceID
	}
	return fmt.Sprintf(defaultTemplate, quote(practiceID), quote(name))
}

// Default returns the default Config for a practice.
func Default(practiceID, name string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(practiceID, name))).Decode(&cfg)
	return &cfg
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Missing chart
// values fall back to the defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default("", "")
	cfg.Practice.Name = ""
	cfg.Roles = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config back to YAML.
func (c *Config) YAML() (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func quote(s string) string {
	out, err := yaml.Marshal(s)
	if err != nil {
		return `""`
	}
	return strings.TrimSpace(string(out))
}

const defaultTemplate = `practice:
  id: %s
  name: %s

chart:
  node_width: 300
  node_height: 140
  horizontal_gap: 80
  vertical_gap: 120
  root_gap: 120
  stem_height: 60

roles:
  Arzt: "#3B82F6"
  MFA: "#10B981"
  Auszubildende-MFA: "#F59E0B"
  Weiterbildungsassistent: "#8B5CF6"
  Verwaltung: "#64748B"
  Extern: "#F43F5E"
`
