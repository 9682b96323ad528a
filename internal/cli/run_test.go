package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/microsim/internal/results"
)

const fixture = "testdata/population.yaml"

// execRun runs the run command with a fixed run id and returns stdout.
func execRun(t *testing.T, format string, runID string, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: format},
		RunIDs:      results.NewFixedGenerator(runID),
	}
	cmd := newRunCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_TextOutput(t *testing.T) {
	out, err := execRun(t, "text", "run-1",
		"--population", fixture, "--seed", "42", "--start-year", "2011", "--end-year", "2012")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "run run-1 seed=42 years=2011-2012", lines[0])
	assert.Contains(t, out, "2011 event birth attempted=")
	assert.Contains(t, out, "2012 event job_change attempted=")
	assert.Contains(t, out, "2012 summary persons ")
	assert.Contains(t, out, "2012 summary workers_fired 0")
}

func TestRun_JSONIsReproducible(t *testing.T) {
	args := func(workers string) []string {
		return []string{"--population", fixture, "--seed", "7", "--start-year", "2011", "--end-year", "2014", "--workers", workers}
	}
	first, err := execRun(t, "json", "run-1", args("1")...)
	require.NoError(t, err)
	second, err := execRun(t, "json", "run-1", args("4")...)
	require.NoError(t, err)
	assert.Equal(t, first, second, "same seed, any worker count, same output")

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			RunID string `json:"run_id"`
			Years []struct {
				Year   int `json:"year"`
				Events []struct {
					Kind string `json:"kind"`
				} `json:"events"`
			} `json:"years"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(first), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.Data.RunID)
	require.Len(t, resp.Data.Years, 4)
	assert.Equal(t, 2014, resp.Data.Years[3].Year)
	assert.Len(t, resp.Data.Years[0].Events, 6, "every registered kind is reported")
}

func TestRun_WritesSinks(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "results.db")
	csvPath := filepath.Join(dir, "results.csv")
	prom := filepath.Join(dir, "microsim.prom")
	traces := filepath.Join(dir, "traces.jsonl")

	_, err := execRun(t, "text", "run-1",
		"--population", fixture,
		"--start-year", "2011", "--end-year", "2013",
		"--results-db", db,
		"--results-csv", csvPath,
		"--metrics-file", prom,
		"--tracing-exporter", "file", "--tracing-file-path", traces)
	require.NoError(t, err)

	sink, err := results.OpenSQLite(db)
	require.NoError(t, err)
	defer sink.Close()
	runs, err := sink.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, results.RunInfo{ID: "run-1", Seed: 1, StartYear: 2011, EndYear: 2013, Seq: 1}, runs[0])
	y, err := sink.ReadYear(context.Background(), "run-1", 2013)
	require.NoError(t, err)
	_, ok := y.Summary("households")
	assert.True(t, ok)

	csvData, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(csvData), "run_id,year,category,name,attempted,value\n"))
	assert.Contains(t, string(csvData), "run-1,2013,event,birth,")

	promData, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(promData), "microsim_years_total 3")

	traceData, err := os.ReadFile(traces)
	require.NoError(t, err)
	assert.Equal(t, 3*5, strings.Count(string(traceData), "\n"), "one year span and four phase spans per year")
}

func TestRun_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "microsim.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("population: "+fixture+"\nseed: 5\nend_year: 2012\n"), 0o644))

	out := &bytes.Buffer{}
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text", ConfigFile: cfgPath},
		RunIDs:      results.NewFixedGenerator("cfg"),
	}
	cmd := newRunCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--seed", "9"})
	require.NoError(t, cmd.Execute())

	assert.True(t, strings.HasPrefix(out.String(), "run cfg seed=9 years=2011-2012\n"), out.String())
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	badParams := filepath.Join(dir, "bad.cue")
	require.NoError(t, os.WriteFile(badParams, []byte("move: probability: 2\n"), 0o644))
	strayZone := filepath.Join(dir, "stray.yaml")
	require.NoError(t, os.WriteFile(strayZone, []byte("dwellings:\n  - {id: 1, zone: 9}\n"), 0o644))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing population", nil, "population is required"},
		{"reversed years", []string{"--population", fixture, "--start-year", "2012", "--end-year", "2011"}, "end_year 2011 is before start_year 2012"},
		{"unreadable population", []string{"--population", filepath.Join(dir, "missing.yaml")}, "failed to load population"},
		{"invalid params", []string{"--population", fixture, "--params", badParams}, "failed to load parameters"},
		{"unknown zone", []string{"--population", strayZone}, "dwelling 1: unknown zone 9"},
		{"bad exporter", []string{"--population", fixture, "--tracing-exporter", "jaeger"}, `got "jaeger"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execRun(t, "text", "r", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestRun_JSONErrorResponse(t *testing.T) {
	badParams := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(badParams, []byte("aging: adultAge: -1\n"), 0o644))

	out, err := execRun(t, "json", "r", "--population", fixture, "--params", badParams)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := &RunOptions{RootOptions: &RootOptions{Format: "text"}, RunIDs: results.NewFixedGenerator("c")}
	cmd := newRunCommand(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--population", fixture, "--end-year", "2015"})
	cmd.SetContext(ctx)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulation cancelled")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestCloseLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	closeLogged(logger, "results csv", closerFunc(func() error { return errors.New("disk full") }))
	assert.Contains(t, buf.String(), `msg="error closing results csv" error="disk full"`)

	buf.Reset()
	closeLogged(logger, "results database", closerFunc(func() error { return nil }))
	assert.Empty(t, buf.String())
}
