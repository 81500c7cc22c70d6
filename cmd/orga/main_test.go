package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"organigramm/internal/domain"
	"organigramm/internal/orgchart"
)

func TestSetEnvValueReplacesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ORGA_DSN=x\nORGA_DEFAULT_PRACTICE=old\n"), 0o644))

	require.NoError(t, setEnvValue(path, defaultPracticeEnv, "praxis"))
	require.NoError(t, setEnvValue(path, "ORGA_LOG_LEVEL", "info"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ORGA_DSN=x\nORGA_DEFAULT_PRACTICE=praxis\nORGA_LOG_LEVEL=info\n", string(data))
}

func TestLoadEnvKeepsExistingVariables(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, envFile), []byte("ORGA_TEST_A=file\nORGA_TEST_B=file\n"), 0o644))
	t.Setenv("ORGA_TEST_A", "env")
	t.Cleanup(func() { os.Unsetenv("ORGA_TEST_B") })

	require.NoError(t, loadEnv(dir))

	assert.Equal(t, "env", os.Getenv("ORGA_TEST_A"))
	assert.Equal(t, "file", os.Getenv("ORGA_TEST_B"))
	assert.NoError(t, loadEnv(t.TempDir()))
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := newLogger("loud")
	require.Error(t, err)

	l, err := newLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestHolder(t *testing.T) {
	user, team := "anna", "empfang"
	assert.Equal(t, "anna", holder(domain.Position{UserID: &user, TeamID: &team}))
	assert.Equal(t, "team empfang", holder(domain.Position{TeamID: &team}))
	assert.Equal(t, orgchart.VacantLabel, holder(domain.Position{}))
}

func TestFailureKeepsCause(t *testing.T) {
	err := failure(orgchart.OpUpdate, orgchart.ErrConflict)
	assert.ErrorIs(t, err, orgchart.ErrConflict)
	assert.Contains(t, err.Error(), orgchart.FailureMessage(orgchart.OpUpdate, orgchart.ErrConflict))
}
