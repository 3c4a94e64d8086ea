package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/entityscan/pkg/analyze"
)

// inEmptyDir keeps stray .env or entityscan.yaml files out of the test.
func inEmptyDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inEmptyDir(t)

	s, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "entityscan.db", s.DB.Path)
	assert.Equal(t, analyze.EngineAll, s.NER.Engine)
	assert.Equal(t, 0.5, s.Resolve.ClassifierThreshold)
	assert.Equal(t, 0.8, s.Resolve.LookupThreshold)
	assert.True(t, s.Resolve.ClassifierRejectOther)
	assert.Equal(t, 10*time.Second, s.Resolve.StageTimeout)
	assert.Equal(t, 50, s.Ingest.BatchSize)
	assert.False(t, s.UsesJuditha())

	rc := s.ResolveConfig()
	assert.Equal(t, s.Resolve.StageTimeout, rc.StageTimeout)
	assert.NotNil(t, s.AggregateOptions().Scorer)
}

func TestLoadEnvOverrides(t *testing.T) {
	inEmptyDir(t)
	t.Setenv("ENTITYSCAN_JUDITHA_URL", "http://juditha:8000")
	t.Setenv("ENTITYSCAN_RESOLVE_LOOKUP", "true")
	t.Setenv("ENTITYSCAN_RESOLVE_STAGE_TIMEOUT", "2s")
	t.Setenv("ENTITYSCAN_INGEST_WORKERS", "8")

	s, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "http://juditha:8000", s.Juditha.URL)
	assert.True(t, s.Resolve.Lookup)
	assert.Equal(t, 2*time.Second, s.Resolve.StageTimeout)
	assert.Equal(t, 8, s.Ingest.Workers)
	assert.Equal(t, "http://juditha:8000", s.JudithaConfig().BaseURL)
}

func TestLoadFileAndDotEnv(t *testing.T) {
	dir := inEmptyDir(t)
	yaml := `
db:
  path: /data/scan.db
aggregate:
  use_confidence: true
  threshold: 0.7
resolve:
  geonames: true
geonames:
  path: /data/cities.txt
annotate: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(yaml), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ENTITYSCAN_LOG_LEVEL=debug\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("ENTITYSCAN_LOG_LEVEL") })

	s, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "/data/scan.db", s.DB.Path)
	assert.True(t, s.Aggregate.UseConfidence)
	assert.Equal(t, 0.7, s.AggregateOptions().Threshold)
	assert.True(t, s.Resolve.Geonames)
	assert.True(t, s.Annotate)
	assert.Equal(t, "debug", s.Log.Level)
}

func TestLoadExplicitFileMissing(t *testing.T) {
	inEmptyDir(t)
	_, err := Load(New(), "nope.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	inEmptyDir(t)
	v := New()
	v.Set("aggregate.threshold", 1.5)
	v.Set("ner.engine", "bert")
	v.Set("resolve.classifier", true)
	v.Set("ingest.batch_size", 0)

	_, err := Load(v, "")
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "aggregate.threshold")
	assert.Contains(t, msg, "ner.engine")
	assert.Contains(t, msg, "juditha.url")
	assert.Contains(t, msg, "ingest.batch_size")
}
