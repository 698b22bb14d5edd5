package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusCollector_IncrementCounter(t *testing.T) {
	collector := NewPrometheusCollector()
	collector.IncrementCounter("test_counter", "label1", "value1")
	collector.IncrementCounter("test_counter", "label1", "value1")

	counter := collector.counters["test_counter"]
	assert.NotNil(t, counter, "Counter should be created")

	value := testutil.ToFloat64(counter.WithLabelValues("value1"))
	assert.Equal(t, float64(2), value, "Counter should be incremented twice")
}

func TestPrometheusCollector_RecordHistogram(t *testing.T) {
	collector := NewPrometheusCollector()
	collector.RecordHistogram("test_histogram", 42.0, "label1", "value1")

	histogram := collector.histograms["test_histogram"]
	assert.NotNil(t, histogram, "Histogram should be created")

	count := testutil.CollectAndCount(histogram)
	assert.Equal(t, 1, count, "Histogram should have one observation")
}

func TestPrometheusCollector_RecordGauge(t *testing.T) {
	collector := NewPrometheusCollector()
	collector.RecordGauge("test_gauge", 42.0, "label1", "value1")

	gauge := collector.gauges["test_gauge"]
	assert.NotNil(t, gauge, "Gauge should be created")

	value := testutil.ToFloat64(gauge.WithLabelValues("value1"))
	assert.Equal(t, 42.0, value, "Gauge should be set to 42.0")
}

func TestPrometheusCollector_StartTimer(t *testing.T) {
	collector := NewPrometheusCollector()
	timer := collector.StartTimer("test_timer")

	time.Sleep(10 * time.Millisecond)

	duration := timer.Stop()
	assert.Greater(t, duration, 0.0, "Timer duration should be greater than 0")

	// Stopping the timer records into a histogram named after it.
	assert.NotNil(t, collector.histograms["test_timer_seconds"])
}

func TestPrometheusCollector_SeparateRegistries(t *testing.T) {
	// Two collectors with the same metric names must not collide.
	a := NewPrometheusCollector()
	b := NewPrometheusCollector()
	a.IncrementCounter("shared_counter")
	b.IncrementCounter("shared_counter")
}

func TestPrometheusCollector_Handler(t *testing.T) {
	collector := NewPrometheusCollector()
	collector.IncrementCounter("handled_counter")
	assert.NotNil(t, collector.Handler())
}

func TestParseLabelPairs(t *testing.T) {
	names, values := parseLabelPairs([]string{"a", "1", "b", "2"})
	assert.Equal(t, []string{"a", "b"}, names)
	assert.Equal(t, []string{"1", "2"}, values)

	// Odd trailing label is dropped.
	names, values = parseLabelPairs([]string{"a", "1", "dangling"})
	assert.Equal(t, []string{"a"}, names)
	assert.Equal(t, []string{"1"}, values)

	names, values = parseLabelPairs(nil)
	assert.Empty(t, names)
	assert.Empty(t, values)
}
