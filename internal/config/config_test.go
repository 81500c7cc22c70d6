package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"organigramm/internal/domain"
	"organigramm/internal/orgchart"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("praxis-mitte", "Praxis Mitte: Dr. Weber")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "praxis-mitte", cfg.Practice.ID)
	assert.Equal(t, "Praxis Mitte: Dr. Weber", cfg.Practice.Name)
	assert.Equal(t, orgchart.CanvasSpacing, cfg.Spacing())
	assert.Equal(t, orgchart.Size{W: 300, H: 140}, cfg.NodeSize()(domain.Position{}))
}

func TestFromYAMLFillsChartDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
practice:
  id: p1
chart:
  horizontal_gap: 10
roles:
  Labor: "#112233"
webhooks:
  - url: https://hooks.example.test/org
    events: ["position.*"]
`))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Chart.HorizontalGap)
	assert.Equal(t, 120, cfg.Chart.VerticalGap)
	assert.Equal(t, "#112233", cfg.Palette().Color("Labor"))
	assert.Equal(t, "#3B82F6", cfg.Palette().Color("Arzt"))
	require.Len(t, cfg.Webhooks, 1)
	assert.True(t, cfg.Webhooks[0].IsEnabled())
	assert.True(t, cfg.Webhooks[0].Wants("position.update"))
	assert.False(t, cfg.Webhooks[0].Wants("practice.create"))
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"missing id":     "practice: {name: x}\n",
		"bad color":      "practice: {id: p}\nroles: {MFA: green}\n",
		"stem too tall":  "practice: {id: p}\nchart: {vertical_gap: 10, stem_height: 10}\n",
		"bad webhook":    "practice: {id: p}\nwebhooks: [{url: not-a-url}]\n",
		"broken yaml":    "practice: [\n",
		"tiny node":      "practice: {id: p}\nchart: {node_width: 5}\n",
		"slow webhook":   "practice: {id: p}\nwebhooks: [{url: 'https://x.test', timeout_seconds: 600}]\n",
		"empty event id": "practice: {id: p}\nwebhooks: [{url: 'https://x.test', events: ['']}]\n",
	}
	for name, doc := range cases {
		_, err := FromYAML([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault("p9", "")), 0o644))
	cfg, err = LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, "p9", cfg.Practice.Name)
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Default("p1", "Praxis")
	out, err := cfg.YAML()
	require.NoError(t, err)
	back, err := FromYAML([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestWebhookDisabled(t *testing.T) {
	off := false
	w := Webhook{URL: "https://x.test", Enabled: &off, Events: []string{"*"}}
	assert.False(t, w.IsEnabled())
	assert.True(t, w.Wants("anything"))
}
