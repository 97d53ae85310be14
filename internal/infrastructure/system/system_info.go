// Package system reads host resource usage from /proc and the HLS filesystem.
package system

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/radiocast/backend/internal/domain"
)

const defaultCacheExpiry = 5 * time.Second

// Collector gathers SystemInfo and caches it briefly to limit /proc reads
type Collector struct {
	procRoot    string
	hlsRoot     string
	records     domain.RecordManager
	cacheExpiry time.Duration

	mu         sync.Mutex
	data       *domain.SystemInfo
	lastUpdate time.Time
}

// NewCollector creates a collector reporting disk usage of hlsRoot
func NewCollector(hlsRoot string, records domain.RecordManager) *Collector {
	return &Collector{
		procRoot:    "/proc",
		hlsRoot:     hlsRoot,
		records:     records,
		cacheExpiry: defaultCacheExpiry,
	}
}

// GetSystemInfo returns current system information, cached for a few seconds.
// Sources that cannot be read leave their fields zero.
func (c *Collector) GetSystemInfo() (*domain.SystemInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data != nil && time.Since(c.lastUpdate) < c.cacheExpiry {
		cached := *c.data
		return &cached, nil
	}

	info := &domain.SystemInfo{CPUThreads: runtime.NumCPU()}

	if mem, err := c.memoryInfo(); err == nil {
		info.MemoryTotal = mem.total
		info.MemoryAvailable = mem.available
		info.MemoryUsed = mem.total - mem.available
		if mem.total > 0 {
			info.MemoryPercent = float64(info.MemoryUsed) / float64(mem.total) * 100.0
		}
	}

	if load, err := c.loadAverage(); err == nil {
		info.LoadAverage1, info.LoadAverage5, info.LoadAverage15 = load[0], load[1], load[2]
	}

	if uptime, err := c.uptime(); err == nil {
		info.Uptime = uptime
	}

	if total, free, err := diskUsage(c.hlsRoot); err == nil {
		info.DiskTotal = total
		info.DiskFree = free
		if total > 0 {
			info.DiskPercent = float64(total-free) / float64(total) * 100.0
		}
	}

	if c.records != nil {
		active := c.records.ListActiveRecords()
		info.ActiveJobs = len(active)
		for _, r := range active {
			info.ActiveWorkers += len(r.Workers)
		}
	}

	c.data = info
	c.lastUpdate = time.Now()

	result := *info
	return &result, nil
}

type memoryInfo struct {
	total     int64
	available int64
}

func (c *Collector) memoryInfo() (*memoryInfo, error) {
	data, err := os.ReadFile(filepath.Join(c.procRoot, "meminfo"))
	if err != nil {
		return nil, err
	}

	info := &memoryInfo{}
	var free int64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}

		// kB to bytes
		switch fields[0] {
		case "MemTotal:":
			info.total = value * 1024
		case "MemAvailable:":
			info.available = value * 1024
		case "MemFree:":
			free = value * 1024
		}
	}

	// kernels before 3.14 have no MemAvailable
	if info.available == 0 {
		info.available = free
	}
	if info.total == 0 {
		return nil, fmt.Errorf("MemTotal missing from meminfo")
	}
	return info, nil
}

func (c *Collector) loadAverage() ([3]float64, error) {
	var load [3]float64
	data, err := os.ReadFile(filepath.Join(c.procRoot, "loadavg"))
	if err != nil {
		return load, err
	}

	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return load, fmt.Errorf("insufficient load average fields")
	}
	for i := range load {
		load[i], _ = strconv.ParseFloat(fields[i], 64)
	}
	return load, nil
}

func (c *Collector) uptime() (int64, error) {
	data, err := os.ReadFile(filepath.Join(c.procRoot, "uptime"))
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(string(data))
	if len(fields) < 1 {
		return 0, fmt.Errorf("insufficient uptime fields")
	}

	uptime, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, err
	}
	return int64(uptime), nil
}
