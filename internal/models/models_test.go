package models

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/microsim/internal/diag"
	"github.com/roach88/microsim/internal/engine"
	"github.com/roach88/microsim/internal/params"
	"github.com/roach88/microsim/internal/rng"
)

func yearContext(year int, seed uint64) *engine.YearContext {
	c := diag.New()
	c.Reset(year)
	return &engine.YearContext{Year: year, Rand: rng.New(seed), Counters: c, Logger: slog.New(slog.DiscardHandler)}
}

func defaultParams(t *testing.T) *params.Params {
	t.Helper()
	p, err := params.Default()
	require.NoError(t, err)
	return p
}
