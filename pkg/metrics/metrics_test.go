package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("inbox", "api", prometheus.NewRegistry())

	m.Created("system_update")
	m.Created("system_update")
	m.Read("batch", 3)
	m.Read("single", 0)
	m.Deleted("all", 4)
	m.Event("notification.read", errors.New("down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NotificationsCreated.WithLabelValues("system_update")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.NotificationsRead.WithLabelValues("batch")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.NotificationsRead.WithLabelValues("single")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.NotificationsDeleted.WithLabelValues("all")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("notification.read", "error")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Created("x")
		m.Read("all", 1)
		m.Deleted("all", 1)
		m.StorageError("list")
		m.Session("ok")
		m.Event("x", nil)
	})
}
