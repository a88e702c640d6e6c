package main

import (
	"github.com/zmyer/mesos/allocator"
	"github.com/zmyer/mesos/common/metrics"
)

// Config holds all configs to run an allocatord server.
type Config struct {
	Metrics   metrics.Config   `yaml:"metrics"`
	Allocator allocator.Config `yaml:"allocator"`
	HTTPPort  int              `yaml:"http_port" validate:"min=0"`
}
