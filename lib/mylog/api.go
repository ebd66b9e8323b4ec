package mylog

import (
	"context"
	"strings"
	"sync/atomic"
)

type Severity string

const (
	SeverityDebug Severity = "DEBUG"
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

var severityRank = map[Severity]int32{
	SeverityDebug: 0,
	SeverityInfo:  1,
	SeverityWarn:  2,
	SeverityError: 3,
}

var New func(name string) Logger

type Logger interface {
	Log(ctx context.Context, traceLabel string, severity Severity, format string, a ...any)
}

var minimumRank atomic.Int32

// SetLevel drops every entry below the given level ("debug", "info", "warn", "error").
// Unknown levels are ignored.
func SetLevel(level string) {
	rank, found := severityRank[Severity(strings.ToUpper(level))]
	if found {
		minimumRank.Store(rank)
	}
}

func enabled(severity Severity) bool {
	return severityRank[severity] >= minimumRank.Load()
}
