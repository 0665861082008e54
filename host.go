package main

import (
	"log/slog"
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sys/cpu"
)

// HostInfo describes the machine the model runs on.
type HostInfo struct {
	CPUBrand          string  `json:"cpu_brand"`
	LogicalCores      int     `json:"logical_cores"`
	NumCPU            int     `json:"num_cpu"`
	GoVersion         string  `json:"go_version"`
	MemoryTotal       uint64  `json:"memory_total,omitempty"`
	MemoryAvailable   uint64  `json:"memory_available,omitempty"`
	MemoryUsedPercent float64 `json:"memory_used_percent,omitempty"`
}

// cpuFeatures reports the SIMD extensions the inference runtimes can use.
func cpuFeatures() map[string]bool {
	return map[string]bool{
		"sse41":   cpu.X86.HasSSE41,
		"avx":     cpu.X86.HasAVX,
		"avx2":    cpu.X86.HasAVX2,
		"avx512f": cpu.X86.HasAVX512F,
		"fma":     cpu.X86.HasFMA,
		"asimd":   cpu.ARM64.HasASIMD,
	}
}

// hostInfo collects CPU and memory details. Memory fields stay empty when the
// platform does not expose them.
func hostInfo(logger *slog.Logger) HostInfo {
	info := HostInfo{
		CPUBrand:     cpuid.CPU.BrandName,
		LogicalCores: cpuid.CPU.LogicalCores,
		NumCPU:       runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		logger.Debug("memory statistics unavailable", "error", err)
		return info
	}
	info.MemoryTotal = vm.Total
	info.MemoryAvailable = vm.Available
	info.MemoryUsedPercent = vm.UsedPercent
	return info
}
