package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndUpdate(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New()
	require.NoError(t, c.Register(reg))

	c.PendingJobs.Set(3)
	c.JobsCrashed.Inc()
	c.JobsCrashStreak.Set(2)

	require.Equal(t, float64(3), testutil.ToFloat64(c.PendingJobs))
	require.Equal(t, float64(1), testutil.ToFloat64(c.JobsCrashed))
	require.Equal(t, float64(2), testutil.ToFloat64(c.JobsCrashStreak))
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New()
	require.NoError(t, c.Register(reg))
	require.Error(t, c.Register(reg))
}
