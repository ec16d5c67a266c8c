// Package stat 采集主机资源占用，供状态接口展示
package stat

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot 一次主机资源采样
type Snapshot struct {
	SampledAt   time.Time `json:"sampled_at"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemTotal    uint64    `json:"mem_total"`
	MemUsed     uint64    `json:"mem_used"`
	MemPercent  float64   `json:"mem_percent"`
	DiskTotal   uint64    `json:"disk_total"`
	DiskUsed    uint64    `json:"disk_used"`
	DiskPercent float64   `json:"disk_percent"`
}

var latest atomic.Pointer[Snapshot]

// Load 返回最近一次采样，尚未采样时返回 nil
func Load() *Snapshot { return latest.Load() }

// Run 周期采样主机资源，dir 是磁盘观测路径（通常为存档目录）
// 阻塞运行，调用方用 go stat.Run(...) 启动
func Run(ctx context.Context, dir string, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	sample(dir)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample(dir)
		}
	}
}

func sample(dir string) {
	snap := Snapshot{SampledAt: time.Now()}
	// interval 传 0 取自上次调用以来的均值，不阻塞
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemTotal = vm.Total
		snap.MemUsed = vm.Used
		snap.MemPercent = vm.UsedPercent
	}
	if du, err := disk.Usage(dir); err == nil {
		snap.DiskTotal = du.Total
		snap.DiskUsed = du.Used
		snap.DiskPercent = du.UsedPercent
	}
	latest.Store(&snap)
}
