package telemetry

import (
	"context"
	"runtime/pprof"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/erp/weclapp-migration/internal/infrastructure/config"
)

func TestProfiler_Disabled(t *testing.T) {
	p, err := NewProfiler(config.ProfilingConfig{}, "test", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())

	tp, err := NewTracerProvider(context.Background(), config.TelemetryConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	p.LinkSpans(tp)

	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestProfiler_RequiresServerAddress(t *testing.T) {
	_, err := NewProfiler(config.ProfilingConfig{Enabled: true}, "test", zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "server_address")
}

func TestWithProfileLabels(t *testing.T) {
	got := map[string]string{}
	WithProfileLabels(context.Background(), map[string]string{
		LabelJobType: "migrate",
		LabelKind:    "Customer",
		"":           "dropped",
		"empty":      "",
	}, func(ctx context.Context) {
		pprof.ForLabels(ctx, func(k, v string) bool {
			got[k] = v
			return true
		})
	})
	assert.Equal(t, map[string]string{LabelJobType: "migrate", LabelKind: "Customer"}, got)

	called := false
	WithProfileLabels(context.Background(), nil, func(ctx context.Context) {
		called = true
		_, ok := pprof.Label(ctx, LabelKind)
		assert.False(t, ok)
	})
	assert.True(t, called)
}
