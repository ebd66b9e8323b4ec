package mycontext

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextFromHTTPRequest(t *testing.T) {
	t.Run("Trace header present", func(t *testing.T) {
		t.Setenv("GOOGLE_CLOUD_PROJECT", "my-project")
		request, err := http.NewRequest(http.MethodGet, "/health", nil)
		assert.NoError(t, err)
		request.Header.Set("X-Cloud-Trace-Context", "105445aa7843bc8bf206b12000100000/1;o=1")

		c := ContextFromHTTPRequest(request)

		assert.Equal(t, "projects/my-project/traces/105445aa7843bc8bf206b12000100000", TraceFromContext(c))
	})

	t.Run("Trace header absent", func(t *testing.T) {
		request, err := http.NewRequest(http.MethodGet, "/health", nil)
		assert.NoError(t, err)

		c := ContextFromHTTPRequest(request)

		assert.Equal(t, "", TraceFromContext(c))
	})
}
