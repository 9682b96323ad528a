package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/microsim/internal/tracing"
)

func TestLoad_DefaultsNeedPopulation(t *testing.T) {
	_, err := Load(New(), "")
	require.ErrorContains(t, err, "population is required")
}

func TestLoad_Defaults(t *testing.T) {
	v := New()
	v.Set("population", "pop.yaml")

	cfg, err := Load(v, "")
	require.NoError(t, err)

	want := Defaults()
	want.Population = "pop.yaml"
	assert.Equal(t, want, cfg)
}

func TestLoad_FileEnvFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "microsim.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
seed: 7
start_year: 2011
end_year: 2015
population: from-file.yaml
workers: 2
results:
  db: results.db
tracing:
  exporter: file
  file_path: traces.jsonl
`), 0o644))

	t.Setenv("MICROSIM_WORKERS", "6")
	t.Setenv("MICROSIM_RESULTS_CSV", "out.csv")

	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.Uint64("seed", 1, "")
	flags.Int("end-year", 2011, "")
	flags.String("results-db", "", "")
	require.NoError(t, flags.Parse([]string{"--end-year", "2020"}))

	v := New()
	require.NoError(t, BindFlags(v, flags))
	cfg, err := Load(v, file)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), cfg.Seed, "unset flag does not shadow the file")
	assert.Equal(t, 2011, cfg.StartYear)
	assert.Equal(t, 2020, cfg.EndYear, "flag beats file")
	assert.Equal(t, 6, cfg.Workers, "env beats file")
	assert.Equal(t, "from-file.yaml", cfg.Population)
	assert.Equal(t, ResultsConfig{DB: "results.db", CSV: "out.csv"}, cfg.Results)
	assert.Equal(t, tracing.Config{Exporter: "file", FilePath: "traces.jsonl", SampleRate: 1.0}, cfg.Tracing)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	base := Defaults()
	base.Population = "pop.yaml"
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"reversed years", func(c *Config) { c.StartYear, c.EndYear = 2020, 2010 }, "end_year 2010 is before start_year 2020"},
		{"negative workers", func(c *Config) { c.Workers = -1 }, "workers must not be negative"},
		{"bad exporter", func(c *Config) { c.Tracing.Exporter = "otlp" }, `got "otlp"`},
		{"file without path", func(c *Config) { c.Tracing.Exporter = "file" }, "tracing.file_path is required"},
		{"sample rate", func(c *Config) { c.Tracing.SampleRate = 1.5 }, "sample_rate must be between"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			require.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}
