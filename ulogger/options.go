package ulogger

import (
	"io"
	"os"

	"github.com/ordishs/gocore"
)

type Options struct {
	logLevel string
	writer   io.Writer
}

type Option func(*Options)

func DefaultOptions() *Options {
	logLevel, _ := gocore.Config().Get("logLevel", "INFO")

	return &Options{
		logLevel: logLevel,
		writer:   os.Stdout,
	}
}

// WithLevel sets the minimum level the logger emits.
func WithLevel(logLevel string) Option {
	return func(o *Options) {
		o.logLevel = logLevel
	}
}

// WithWriter sets the destination the logger writes to.
func WithWriter(w io.Writer) Option {
	return func(o *Options) {
		o.writer = w
	}
}
