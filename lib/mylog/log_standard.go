package mylog

import (
	"context"
	"fmt"
	"io"
	"os"
)

func init() {
	if os.Getenv("GOOGLE_CLOUD_PROJECT") == "" {
		New = newStandardLogger
	}
}

type standardLogger struct {
	componentName string
	out           io.Writer
}

func newStandardLogger(componentName string) Logger {
	return standardLogger{
		componentName: componentName,
		out:           os.Stderr,
	}
}

func (l standardLogger) Log(ctx context.Context, traceLabel string, severity Severity, format string, a ...interface{}) {
	if !enabled(severity) {
		return
	}
	fmt.Fprintf(l.out, "%s - %s - %s - %s\n", l.componentName, traceLabel, string(severity), fmt.Sprintf(format, a...))
}
