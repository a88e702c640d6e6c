package allocator

import "time"

const (
	// defaultAllocationInterval is the period of the batch allocation tick.
	defaultAllocationInterval = 1 * time.Second

	// defaultMinAllocatableCPU and defaultMinAllocatableMem set the floor
	// below which a per-agent slice is not worth offering. A slice is
	// allocatable when it clears either threshold.
	defaultMinAllocatableCPU = 0.01
	defaultMinAllocatableMem = 32.0

	// defaultEventQueueSize bounds the serialized operation queue.
	defaultEventQueueSize = 10000
)

// Config holds the allocator tunables. It is loaded from YAML by the
// daemon and validated before use.
type Config struct {
	// AllocationInterval is the period between batch allocation runs.
	AllocationInterval time.Duration `yaml:"allocation_interval"`

	// MinAllocatableCPU is the cpus threshold of the allocatability check.
	MinAllocatableCPU float64 `yaml:"min_allocatable_cpu" validate:"min=0"`

	// MinAllocatableMem is the mem threshold (MB) of the allocatability
	// check.
	MinAllocatableMem float64 `yaml:"min_allocatable_mem" validate:"min=0"`

	// FairnessExcluded lists resource names left out of dominant share
	// computations.
	FairnessExcluded []string `yaml:"fairness_excluded"`

	// EventQueueSize bounds the operation queue.
	EventQueueSize int `yaml:"event_queue_size" validate:"min=0"`
}

func (c *Config) normalize() {
	if c.AllocationInterval <= 0 {
		c.AllocationInterval = defaultAllocationInterval
	}
	if c.MinAllocatableCPU <= 0 {
		c.MinAllocatableCPU = defaultMinAllocatableCPU
	}
	if c.MinAllocatableMem <= 0 {
		c.MinAllocatableMem = defaultMinAllocatableMem
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = defaultEventQueueSize
	}
}
