package topkapi

import (
	"github.com/hupe1980/topkapi/internal/fs"
	"github.com/hupe1980/topkapi/resource"
)

type options struct {
	phi              float64
	phiSet           bool
	shared           bool
	sharedName       string
	logger           *Logger
	metricsCollector MetricsCollector
	resources        *resource.Controller
	fsys             fs.FileSystem
}

// Option configures New, Load and AttachShared.
type Option func(*options)

func applyOptions(opts []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		fsys:             fs.Default,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithPhi sets the default candidate threshold fraction. It must lie in
// (0, 1); the default is 1/width.
func WithPhi(phi float64) Option {
	return func(o *options) {
		o.phi = phi
		o.phiSet = true
	}
}

// WithShared places the grid in a named shared-memory segment owned by the
// new sketch. An empty name generates a unique one; read it back with Name.
//
// Load honours this option too: the loaded grid is copied into a fresh segment.
func WithShared(name string) Option {
	return func(o *options) {
		o.shared = true
		o.sharedName = name
	}
}

// WithLogger sets the logger for lifecycle events. If nil is passed,
// logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the collector notified after adds, merges,
// queries, saves and loads.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithResourceController bounds the number of rows merged concurrently.
// Without one, merges use up to GOMAXPROCS workers.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys == nil {
			fsys = fs.Default
		}
		o.fsys = fsys
	}
}
