package goappimage

import (
	"log"
)

// Option adjusts how an AppImage is opened.
type Option func(*options)

type options struct {
	verbose bool
	logger  *log.Logger
}

func newOptions(opts []Option) *options {
	o := &options{logger: log.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithVerbose enables log messages about opening and closing AppImages.
func WithVerbose(verbose bool) Option {
	return func(o *options) {
		o.verbose = verbose
	}
}

// WithLogger sets the logger used when verbose. Defaults to log.Default().
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func (o *options) logf(format string, v ...any) {
	if o.verbose {
		o.logger.Printf(format, v...)
	}
}
