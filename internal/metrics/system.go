package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	systemCPUUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nodewarden",
		Subsystem: "system",
		Name:      "cpu_usage_percent",
		Help:      "Overall CPU usage percentage",
	})

	systemMemoryUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nodewarden",
		Subsystem: "system",
		Name:      "memory_used_bytes",
		Help:      "Memory in use in bytes",
	})

	systemMemoryPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nodewarden",
		Subsystem: "system",
		Name:      "memory_used_percent",
		Help:      "Memory in use as a percentage of total",
	})

	systemUptime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nodewarden",
		Subsystem: "system",
		Name:      "uptime_seconds",
		Help:      "Seconds since the device booted",
	})
)

// SetSystemCPUUsage sets the overall CPU usage percentage.
func SetSystemCPUUsage(percent float64) {
	systemCPUUsage.Set(percent)
}

// SetSystemMemory sets the memory usage gauges.
func SetSystemMemory(usedBytes uint64, usedPercent float64) {
	systemMemoryUsed.Set(float64(usedBytes))
	systemMemoryPercent.Set(usedPercent)
}

// SetSystemUptime sets the device uptime in seconds.
func SetSystemUptime(seconds uint64) {
	systemUptime.Set(float64(seconds))
}
