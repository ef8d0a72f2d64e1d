package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ModeOffline, cfg.Mode)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, []string{"log"}, cfg.Notify.Drivers)
	assert.False(t, cfg.Review.AutoClaim)
	assert.Contains(t, cfg.CORSOrigins(), "http://localhost:3000")
}

func TestFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := `
mode: offline
http:
  addr: ":9090"
db:
  driver: postgres
  dsn: postgres://db/grading
review:
  auto_claim: true
notify:
  drivers: [log, eventlog]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	t.Setenv("GRADING_GRADING_WORKERS", "3")
	t.Setenv("HTTP_ADDR", ":7070") // legacy name
	t.Setenv("GRADING_LOG_LEVEL", "debug")

	l := NewLoader(dir)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), l.File())

	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, "postgres://db/grading", cfg.DB.DSN)
	assert.True(t, cfg.Review.AutoClaim)
	assert.Equal(t, []string{"log", "eventlog"}, cfg.Notify.Drivers)
	assert.Equal(t, 3, cfg.Grading.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestGradebookSection(t *testing.T) {
	t.Setenv("GRADING_NOTIFY_DRIVERS", "log,gradebook")
	t.Setenv("GRADING_GRADEBOOK_TOKEN_URL", "https://lms.example/token")
	t.Setenv("GRADING_GRADEBOOK_CLIENT_ID", "grading")
	t.Setenv("AGS_CLIENT_SECRET", "s3cret")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{"log", "gradebook"}, cfg.Notify.Drivers)
	assert.Equal(t, "https://lms.example/token", cfg.Gradebook.TokenURL)
	assert.Equal(t, "s3cret", cfg.Gradebook.ClientSecret)
	assert.Equal(t, 10*time.Second, cfg.Gradebook.Timeout)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(t *testing.T){
		"bad driver":      func(t *testing.T) { t.Setenv("DB_DRIVER", "mysql") },
		"bad mode":        func(t *testing.T) { t.Setenv("MODE", "hybrid") },
		"short secret":    func(t *testing.T) { t.Setenv("MODE", "online"); t.Setenv("JWT_SECRET", "short") },
		"unknown notify":  func(t *testing.T) { t.Setenv("GRADING_NOTIFY_DRIVERS", "log,kafka") },
		"negative worker": func(t *testing.T) { t.Setenv("GRADING_GRADING_WORKERS", "-1") },
		"gradebook bare":  func(t *testing.T) { t.Setenv("GRADING_NOTIFY_DRIVERS", "log,gradebook") },
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			setup(t)
			_, err := Load(t.TempDir())
			assert.Error(t, err)
		})
	}
}
