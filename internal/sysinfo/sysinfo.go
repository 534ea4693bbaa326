// Package sysinfo reports host and process memory and sizes worker pools to fit.
package sysinfo

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"
)

// BuffersPerWorker is how many chunk-sized buffers one job holds at a time:
// the plaintext window and the cipher output.
const BuffersPerWorker = 2

// Memory is a snapshot of host memory in bytes.
type Memory struct {
	Total     uint64
	Available uint64
}

// HostMemory returns the host's total and available memory.
func HostMemory() (Memory, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Memory{}, fmt.Errorf("reading host memory: %w", err)
	}

	return Memory{Total: vm.Total, Available: vm.Available}, nil
}

// ProcessRSS returns the resident set size of the current process.
func ProcessRSS() (uint64, error) {
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pids fit in int32
	if err != nil {
		return 0, fmt.Errorf("inspecting process: %w", err)
	}

	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("reading process memory: %w", err)
	}

	return info.RSS, nil
}

// FitWorkers returns the largest worker count up to workers whose buffers fit
// in available bytes. It never returns less than one.
func FitWorkers(workers int, chunkSize int64, available uint64) int {
	if workers < 1 {
		workers = 1
	}

	if chunkSize <= 0 || available == 0 {
		return workers
	}

	perWorker := uint64(chunkSize) * BuffersPerWorker

	fit := available / perWorker
	if fit < 1 {
		return 1
	}

	if fit < uint64(workers) {
		return int(fit) //nolint:gosec // fit < workers
	}

	return workers
}
