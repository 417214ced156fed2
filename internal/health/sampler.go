package health

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"

	"github.com/guardix/guardix/internal/models"
)

// Sampler periodically refreshes a snapshot of host metrics. It only
// ever replaces its own snapshot record and never blocks on, or is
// blocked by, scan or quarantine activity.
type Sampler struct {
	mu       sync.RWMutex
	interval time.Duration
	health   models.SystemHealth
	logger   *logrus.Logger
}

// NewSampler returns a sampler refreshing at the given interval.
func NewSampler(interval time.Duration, logger *logrus.Logger) *Sampler {
	return &Sampler{interval: interval, logger: logger}
}

// Run samples immediately, then on every tick until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	s.Refresh()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Health sampler stopped")
			return
		case <-ticker.C:
			s.Refresh()
		}
	}
}

// Snapshot returns a copy of the last sample.
func (s *Sampler) Snapshot() models.SystemHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.health
	snap.CPUCores = append([]float64(nil), s.health.CPUCores...)
	snap.Disks = append([]models.DiskInfo(nil), s.health.Disks...)
	snap.Processes = append([]models.ProcessInfo(nil), s.health.Processes...)
	return snap
}

// Refresh takes one sample and replaces the snapshot. Individual
// probe failures degrade the sample instead of failing it.
func (s *Sampler) Refresh() {
	var health models.SystemHealth

	if cores, err := cpu.Percent(0, true); err == nil {
		health.CPUCores = cores
	} else {
		s.logger.WithError(err).Debug("CPU sample failed")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		health.MemoryTotal = vm.Total
		health.MemoryUsed = vm.Used
		health.MemoryFree = vm.Available
	} else {
		s.logger.WithError(err).Debug("Memory sample failed")
	}

	if swap, err := mem.SwapMemory(); err == nil {
		health.SwapTotal = swap.Total
		health.SwapUsed = swap.Used
	}

	health.Disks = s.sampleDisks()
	health.Processes = s.sampleProcesses()

	if uptime, err := host.Uptime(); err == nil {
		health.Uptime = uptime
	}
	if avg, err := load.Avg(); err == nil {
		health.Load1 = avg.Load1
		health.Load5 = avg.Load5
		health.Load15 = avg.Load15
	}

	s.mu.Lock()
	s.health = health
	s.mu.Unlock()
}

func (s *Sampler) sampleDisks() []models.DiskInfo {
	partitions, err := disk.Partitions(false)
	if err != nil {
		s.logger.WithError(err).Debug("Disk partition sample failed")
		return nil
	}

	var disks []models.DiskInfo
	for _, part := range partitions {
		usage, err := disk.Usage(part.Mountpoint)
		if err != nil {
			continue
		}
		disks = append(disks, models.DiskInfo{
			Name:           part.Device,
			MountPoint:     part.Mountpoint,
			TotalSpace:     usage.Total,
			AvailableSpace: usage.Free,
			UsedSpace:      usage.Used,
			UsagePercent:   usage.UsedPercent,
			FileSystem:     part.Fstype,
		})
	}
	return disks
}

func (s *Sampler) sampleProcesses() []models.ProcessInfo {
	procs, err := process.Processes()
	if err != nil {
		s.logger.WithError(err).Debug("Process sample failed")
		return nil
	}

	var infos []models.ProcessInfo
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		info := models.ProcessInfo{PID: p.Pid, Name: name}
		if cpuPct, err := p.CPUPercent(); err == nil {
			info.CPUUsage = cpuPct
		}
		if memInfo, err := p.MemoryInfo(); err == nil && memInfo != nil {
			info.MemoryUsage = memInfo.RSS
		}
		if statuses, err := p.Status(); err == nil && len(statuses) > 0 {
			info.Status = statuses[0]
		}
		infos = append(infos, info)
	}
	return infos
}
