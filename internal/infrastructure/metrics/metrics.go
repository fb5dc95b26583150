// Package metrics exposes the hub's Prometheus instrumentation.
//
// Init registers the collectors once. The recording functions are safe to
// call before Init (they do nothing), so core packages record unconditionally
// and tests need no setup.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "venthub_"

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

var (
	registerOnce sync.Once
	gatherer     prometheus.Gatherer

	pollsTotal        *prometheus.CounterVec
	pollDuration      prometheus.Histogram
	discoveryRuns     *prometheus.CounterVec
	discoveredDevices prometheus.Counter
	groupCommands     *prometheus.CounterVec
	ruleRuns          *prometheus.CounterVec
	mqttCommandsTotal *prometheus.CounterVec
	telemetryDropped  prometheus.Counter
)

// Init registers the hub collectors with reg. deviceCount backs the
// registry-size gauge and may be nil.
func Init(reg prometheus.Registerer, g prometheus.Gatherer, deviceCount func() float64) {
	registerOnce.Do(func() {
		pollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "device_polls_total",
			Help: "Device probes during poll runs by result",
		}, []string{"result"})
		pollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "poll_run_duration_seconds",
			Help:    "Duration of a full poll run in seconds",
			Buckets: prometheus.DefBuckets,
		})
		discoveryRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "discovery_runs_total",
			Help: "Discovery runs by result",
		}, []string{"result"})
		discoveredDevices = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "discovered_devices_total",
			Help: "Devices added to the registry by discovery",
		})
		groupCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "group_device_commands_total",
			Help: "Per-device outcomes of group set-angle commands",
		}, []string{"result"})
		ruleRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "schedule_rule_runs_total",
			Help: "Scheduled rule executions by result",
		}, []string{"result"})
		mqttCommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "mqtt_commands_total",
			Help: "Commands received over MQTT by result",
		}, []string{"result"})
		telemetryDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "telemetry_write_errors_total",
			Help: "InfluxDB write errors reported by the async writer",
		})

		collectors := []prometheus.Collector{
			pollsTotal, pollDuration, discoveryRuns, discoveredDevices,
			groupCommands, ruleRuns, mqttCommandsTotal, telemetryDropped,
		}
		if deviceCount != nil {
			collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: metricPrefix + "registry_devices",
				Help: "Devices currently in the registry",
			}, deviceCount))
		}
		reg.MustRegister(collectors...)
		gatherer = g
	})
}

// Handler serves the registered metrics. Before Init it serves the default gatherer.
func Handler() http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObservePoll records one device probe inside a poll run.
func ObservePoll(ok bool) {
	if pollsTotal != nil {
		pollsTotal.WithLabelValues(result(ok)).Inc()
	}
}

// ObservePollRun records the duration of a full poll run.
func ObservePollRun(d time.Duration) {
	if pollDuration != nil {
		pollDuration.Observe(d.Seconds())
	}
}

// ObserveDiscovery records a discovery run and the number of new devices.
func ObserveDiscovery(ok bool, added int) {
	if discoveryRuns != nil {
		discoveryRuns.WithLabelValues(result(ok)).Inc()
	}
	if discoveredDevices != nil && added > 0 {
		discoveredDevices.Add(float64(added))
	}
}

// IncGroupCommand records one per-device outcome of a group command.
func IncGroupCommand(res string) {
	if groupCommands != nil {
		groupCommands.WithLabelValues(res).Inc()
	}
}

// IncRuleRun records a scheduled rule execution.
func IncRuleRun(ok bool) {
	if ruleRuns != nil {
		ruleRuns.WithLabelValues(result(ok)).Inc()
	}
}

// IncMQTTCommand records a command received over MQTT.
func IncMQTTCommand(ok bool) {
	if mqttCommandsTotal != nil {
		mqttCommandsTotal.WithLabelValues(result(ok)).Inc()
	}
}

// IncTelemetryError records an async InfluxDB write failure.
func IncTelemetryError() {
	if telemetryDropped != nil {
		telemetryDropped.Inc()
	}
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailed
}
