// Package collectors contains background samplers that feed the Prometheus
// registry with host-level metrics.
package collectors

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/smazurov/nodewarden/internal/logging"
	"github.com/smazurov/nodewarden/internal/metrics"
)

// SystemCollector samples CPU, memory, and uptime on an interval.
type SystemCollector struct {
	logger   logging.Logger
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewSystemCollector creates a new system collector.
func NewSystemCollector() *SystemCollector {
	return &SystemCollector{
		logger:   logging.GetLogger("system"),
		interval: 15 * time.Second,
	}
}

// Start begins collecting system metrics.
func (s *SystemCollector) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.run()
	return nil
}

// Stop stops the system collector.
func (s *SystemCollector) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *SystemCollector) run() {
	s.logger.Info("Starting system metrics collection", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.collect()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.collect()
		}
	}
}

func (s *SystemCollector) collect() {
	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		metrics.SetSystemCPUUsage(percents[0])
	} else if err != nil {
		s.logger.Warn("Failed to sample CPU usage", "error", err)
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		metrics.SetSystemMemory(vmem.Used, vmem.UsedPercent)
	} else {
		s.logger.Warn("Failed to sample memory usage", "error", err)
	}

	if uptime, err := host.Uptime(); err == nil {
		metrics.SetSystemUptime(uptime)
	} else {
		s.logger.Warn("Failed to read uptime", "error", err)
	}
}
