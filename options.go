package desim

// Option configures a Controller at construction time. Grounded on
// eventloop/options.go's LoopOption/loopOptionImpl/resolveLoopOptions
// functional-options pattern, reused here verbatim in shape.
type Option interface {
	apply(*kernelConfig)
}

type optionFunc func(*kernelConfig)

func (f optionFunc) apply(cfg *kernelConfig) { f(cfg) }

type kernelConfig struct {
	name            string
	logger          Logger
	spectrumEnabled bool
	onUserError     func(entity EntityID, eventID EventID, err error)
	realTimeRate    float64
	debug           bool
	prom            *PrometheusExporter
}

func resolveOptions(opts []Option) kernelConfig {
	cfg := kernelConfig{
		logger:       NewDefaultLogger(),
		realTimeRate: 1.0,
	}
	for _, o := range opts {
		if o != nil {
			o.apply(&cfg)
		}
	}
	return cfg
}

// WithName sets the controller's advisory name, surfaced in Report.
func WithName(name string) Option {
	return optionFunc(func(cfg *kernelConfig) { cfg.name = name })
}

// WithLogger overrides the default stderr logger.
func WithLogger(l Logger) Option {
	return optionFunc(func(cfg *kernelConfig) {
		if l != nil {
			cfg.logger = l
		}
	})
}

// WithSpectrumTracking turns on the per-(entity,signature) dispatch
// histogram (spec.md 4.I). Off by default.
func WithSpectrumTracking() Option {
	return optionFunc(func(cfg *kernelConfig) { cfg.spectrumEnabled = true })
}

// WithOnUserError registers a callback invoked, in place of the logger,
// whenever a dispatched Invoke with no blocking caller returns an error
// (a recovered panic arrives as *PanicError). Errors from an Invoke with
// a PostContinuing caller go to that caller instead.
func WithOnUserError(fn func(entity EntityID, eventID EventID, err error)) Option {
	return optionFunc(func(cfg *kernelConfig) { cfg.onUserError = fn })
}

// WithRealTimeRate sets the virtual-time-per-wall-time multiplier used
// by RealTimeController (spec.md 4.G). 1.0 (the default) means virtual
// time tracks wall-clock time 1:1; 2.0 runs twice as fast as real time.
func WithRealTimeRate(rate float64) Option {
	return optionFunc(func(cfg *kernelConfig) {
		if rate > 0 {
			cfg.realTimeRate = rate
		}
	})
}

// WithDebugMode, when enabled, makes every continuation capture its
// creation stack trace (via runtime.Callers); the kernel includes it, as
// "creation_stack", in the debug log line written when a
// PostContinuingWithTimeout call times out. Off by default since
// capturing stacks on every blocking call has a real cost.
func WithDebugMode(enabled bool) Option {
	return optionFunc(func(cfg *kernelConfig) { cfg.debug = enabled })
}

// WithPrometheusExporter attaches an exporter that is kept in sync with
// this controller's Spectrum every time spectrum tracking records a
// dispatch; implies WithSpectrumTracking.
func WithPrometheusExporter(exp *PrometheusExporter) Option {
	return optionFunc(func(cfg *kernelConfig) {
		cfg.prom = exp
		cfg.spectrumEnabled = true
	})
}
