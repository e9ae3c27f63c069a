// Package sysinfo reads host and process telemetry. Health checks and the
// dashboard consume it through the Reader interface so tests can substitute
// fixed values.
package sysinfo

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// Usage summarises host resource consumption.
type Usage struct {
	CPUPercent      float64
	MemoryPercent   float64
	DiskPercent     float64
	MemoryTotal     uint64
	MemoryUsed      uint64
	MemoryAvailable uint64
	DiskTotal       uint64
	DiskUsed        uint64
	DiskFree        uint64
	CPUCount        int
}

// ProcessInfo summarises this process.
type ProcessInfo struct {
	PID         int32
	RSSBytes    uint64
	Connections int
	Threads     int32
	CPUPercent  float64
}

// NetworkCounters holds host-wide transfer totals.
type NetworkCounters struct {
	BytesSent   uint64
	BytesRecv   uint64
	PacketsSent uint64
	PacketsRecv uint64
}

// Reader is the system telemetry contract the rest of the service depends
// on.
type Reader interface {
	Usage() (Usage, error)
	Process() (ProcessInfo, error)
	Network() (NetworkCounters, error)
	LoadAverage() ([3]float64, error)
	BootTime() (time.Time, error)
	Hostname() string
	Platform() string
}

// gopsutilReader implements Reader against the live host.
type gopsutilReader struct {
	diskPath string
}

// NewReader returns a Reader backed by gopsutil, sampling disk usage for
// the filesystem at root.
func NewReader() Reader {
	path := "/"
	if runtime.GOOS == "windows" {
		path = "C:"
	}
	return &gopsutilReader{diskPath: path}
}

func (g *gopsutilReader) Usage() (Usage, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Usage{}, fmt.Errorf("read virtual memory: %w", err)
	}
	du, err := disk.Usage(g.diskPath)
	if err != nil {
		return Usage{}, fmt.Errorf("read disk usage: %w", err)
	}
	// Non-blocking sample over the interval since the previous call.
	cpuPercents, err := cpu.Percent(0, false)
	if err != nil {
		return Usage{}, fmt.Errorf("read cpu percent: %w", err)
	}
	cpuPercent := 0.0
	if len(cpuPercents) > 0 {
		cpuPercent = cpuPercents[0]
	}
	counts, err := cpu.Counts(true)
	if err != nil {
		counts = runtime.NumCPU()
	}

	return Usage{
		CPUPercent:      cpuPercent,
		MemoryPercent:   vm.UsedPercent,
		DiskPercent:     du.UsedPercent,
		MemoryTotal:     vm.Total,
		MemoryUsed:      vm.Used,
		MemoryAvailable: vm.Available,
		DiskTotal:       du.Total,
		DiskUsed:        du.Used,
		DiskFree:        du.Free,
		CPUCount:        counts,
	}, nil
}

func (g *gopsutilReader) Process() (ProcessInfo, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ProcessInfo{}, fmt.Errorf("open own process: %w", err)
	}

	info := ProcessInfo{PID: proc.Pid}
	if memInfo, err := proc.MemoryInfo(); err == nil {
		info.RSSBytes = memInfo.RSS
	}
	if conns, err := proc.Connections(); err == nil {
		info.Connections = len(conns)
	}
	if threads, err := proc.NumThreads(); err == nil {
		info.Threads = threads
	}
	if pct, err := proc.CPUPercent(); err == nil {
		info.CPUPercent = pct
	}
	return info, nil
}

func (g *gopsutilReader) Network() (NetworkCounters, error) {
	counters, err := net.IOCounters(false)
	if err != nil {
		return NetworkCounters{}, fmt.Errorf("read network counters: %w", err)
	}
	if len(counters) == 0 {
		return NetworkCounters{}, nil
	}
	c := counters[0]
	return NetworkCounters{
		BytesSent:   c.BytesSent,
		BytesRecv:   c.BytesRecv,
		PacketsSent: c.PacketsSent,
		PacketsRecv: c.PacketsRecv,
	}, nil
}

func (g *gopsutilReader) LoadAverage() ([3]float64, error) {
	avg, err := load.Avg()
	if err != nil {
		return [3]float64{}, fmt.Errorf("read load average: %w", err)
	}
	return [3]float64{avg.Load1, avg.Load5, avg.Load15}, nil
}

func (g *gopsutilReader) BootTime() (time.Time, error) {
	secs, err := host.BootTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read boot time: %w", err)
	}
	return time.Unix(int64(secs), 0), nil
}

func (g *gopsutilReader) Hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}

func (g *gopsutilReader) Platform() string {
	return runtime.GOOS
}

// Static is a fixed-value Reader for tests.
type Static struct {
	CPU     float64
	Memory  float64
	Disk    float64
	Err     error
	RSS     uint64
	Conns   int
	Threads int32
}

var _ Reader = (*Static)(nil)

func (s *Static) Usage() (Usage, error) {
	if s.Err != nil {
		return Usage{}, s.Err
	}
	return Usage{
		CPUPercent:      s.CPU,
		MemoryPercent:   s.Memory,
		DiskPercent:     s.Disk,
		MemoryTotal:     16 << 30,
		MemoryUsed:      8 << 30,
		MemoryAvailable: 8 << 30,
		DiskTotal:       512 << 30,
		DiskUsed:        256 << 30,
		DiskFree:        256 << 30,
		CPUCount:        8,
	}, nil
}

func (s *Static) Process() (ProcessInfo, error) {
	if s.Err != nil {
		return ProcessInfo{}, s.Err
	}
	return ProcessInfo{PID: 1234, RSSBytes: s.RSS, Connections: s.Conns, Threads: s.Threads}, nil
}

func (s *Static) Network() (NetworkCounters, error) {
	return NetworkCounters{BytesSent: 1 << 20, BytesRecv: 2 << 20, PacketsSent: 1000, PacketsRecv: 2000}, nil
}

func (s *Static) LoadAverage() ([3]float64, error) {
	return [3]float64{0.5, 0.4, 0.3}, nil
}

func (s *Static) BootTime() (time.Time, error) {
	return time.Now().Add(-24 * time.Hour), nil
}

func (s *Static) Hostname() string { return "test-host" }
func (s *Static) Platform() string { return "linux" }
