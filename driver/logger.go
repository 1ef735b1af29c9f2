package driver

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Logger is the narrow logging facade threaded through Driver, Dispatcher,
// Emitter and ConfigStore. It keeps the call-site shape the teacher's
// device.log carried (Verbosef/Errorf) while delegating the actual
// implementation to a structured logger, matching this module's ambient
// logging stack (see SPEC_FULL.md).
type Logger struct {
	hc hclog.Logger
}

// NewLogger builds a Logger named after the driver executable, writing to
// stderr at the given hclog level ("trace" for verbose driver instances).
func NewLogger(name string, verbose bool) *Logger {
	level := hclog.Info
	if verbose {
		level = hclog.Trace
	}
	return &Logger{hc: hclog.New(&hclog.LoggerOptions{
		Name:            name,
		Level:           level,
		Output:          os.Stderr,
		IncludeLocation: false,
	})}
}

func (l *Logger) Verbosef(format string, args ...any) {
	l.hc.Trace(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.hc.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.hc.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.hc.Warn(fmt.Sprintf(format, args...))
}

// With returns a Logger carrying the given structured key/value pairs on
// every subsequent call, mirroring hclog.Logger.With.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{hc: l.hc.With(args...)}
}
