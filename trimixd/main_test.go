package main

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnus188/trimix-analyzer/pkg/config"
	"github.com/magnus188/trimix-analyzer/pkg/history"
	"github.com/magnus188/trimix-analyzer/pkg/sensor"
)

func TestLogTrendsDecimatesHistory(t *testing.T) {
	mock := sensor.NewMock(nil)
	mock.Override(sensor.O2, 20.9)
	mock.Override(sensor.Helium, 35.0)

	cfg := config.SamplingConfig{Interval: time.Second, HistoryCapacity: 60}
	engine := history.New(mock, &cfg, zerolog.Nop())
	for i := 0; i < 40; i++ {
		engine.Record()
	}

	buf := logTrends(engine, nil, zerolog.Nop())
	require.NotEmpty(t, buf)
	assert.LessOrEqual(t, len(buf), trendPoints)

	// The scratch buffer is reused across calls.
	again := logTrends(engine, buf, zerolog.Nop())
	assert.LessOrEqual(t, len(again), trendPoints)
}
