package stats

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/prometheus/procfs"
)

// ResourceSampler reports host CPU and RAM utilisation as ratios in [0, 1]
type ResourceSampler interface {
	Sample() (cpu, ram float64, err error)
}

// ProcSampler reads /proc through procfs
type ProcSampler struct {
	fs   procfs.FS
	ncpu int
}

// NewProcSampler opens the default /proc mount
func NewProcSampler() (*ProcSampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs: %w", err)
	}
	return &ProcSampler{fs: fs, ncpu: runtime.NumCPU()}, nil
}

// Sample returns load1/ncpu and (total - available) / total
func (p *ProcSampler) Sample() (float64, float64, error) {
	load, err := p.fs.LoadAvg()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read load average: %w", err)
	}
	mem, err := p.fs.Meminfo()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read meminfo: %w", err)
	}
	if mem.MemTotal == nil || *mem.MemTotal == 0 {
		return 0, 0, errors.New("meminfo reports no total memory")
	}

	free := mem.MemAvailable
	if free == nil {
		free = mem.MemFree
	}
	if free == nil {
		return 0, 0, errors.New("meminfo reports no free memory")
	}

	cpu := load.Load1 / float64(p.ncpu)
	total := float64(*mem.MemTotal)
	ram := (total - float64(*free)) / total
	return cpu, ram, nil
}
