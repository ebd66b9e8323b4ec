package mycontext

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// CtxTraceContext is the context key for the trace of the inbound request (used by mylog)
type CtxTraceContext struct{}

// ContextFromHTTPRequest derives from the request context so client disconnects cancel downstream calls.
func ContextFromHTTPRequest(r *http.Request) context.Context {
	return WithTrace(r.Context(), traceFromHeader(r.Header.Get("X-Cloud-Trace-Context")))
}

func WithTrace(c context.Context, trace string) context.Context {
	return context.WithValue(c, CtxTraceContext{}, trace)
}

func TraceFromContext(c context.Context) string {
	trace, _ := c.Value(CtxTraceContext{}).(string)
	return trace
}

func traceFromHeader(traceContext string) string {
	traceParts := strings.Split(traceContext, "/")
	if len(traceParts) == 0 || len(traceParts[0]) == 0 {
		return ""
	}
	return fmt.Sprintf("projects/%s/traces/%s", os.Getenv("GOOGLE_CLOUD_PROJECT"), traceParts[0])
}
