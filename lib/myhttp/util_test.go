package myhttp

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientAddress(t *testing.T) {
	testCases := []struct {
		name           string
		remoteAddr     string
		forwarded      []string
		trustedProxies int
		expected       string
	}{
		{name: "Remote address", remoteAddr: "10.0.0.1:5432", expected: "10.0.0.1"},
		{name: "Remote address without port", remoteAddr: "10.0.0.1", expected: "10.0.0.1"},
		{name: "Forwarded ignored without trusted proxy", remoteAddr: "10.0.0.1:5432", forwarded: []string{"203.0.113.7"}, expected: "10.0.0.1"},
		{name: "Forwarded by trusted proxy", remoteAddr: "10.0.0.1:5432", forwarded: []string{"203.0.113.7"}, trustedProxies: 1, expected: "203.0.113.7"},
		{name: "Spoofed entry before trusted proxy", remoteAddr: "10.0.0.1:5432", forwarded: []string{"198.51.100.99, 203.0.113.7"}, trustedProxies: 1, expected: "203.0.113.7"},
		{name: "Two trusted proxies", remoteAddr: "10.0.0.1:5432", forwarded: []string{"198.51.100.99, 203.0.113.7, 10.0.0.2"}, trustedProxies: 2, expected: "203.0.113.7"},
		{name: "Repeated headers", remoteAddr: "10.0.0.1:5432", forwarded: []string{"198.51.100.99", "203.0.113.7"}, trustedProxies: 1, expected: "203.0.113.7"},
		{name: "Fewer hops than trusted proxies", remoteAddr: "10.0.0.1:5432", forwarded: []string{"203.0.113.7"}, trustedProxies: 2, expected: "10.0.0.1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			request, err := http.NewRequest(http.MethodPost, "/api/checkout/create-session", nil)
			assert.NoError(t, err)
			request.RemoteAddr = tc.remoteAddr
			for _, forwarded := range tc.forwarded {
				request.Header.Add("X-Forwarded-For", forwarded)
			}
			assert.Equal(t, tc.expected, ClientAddress(request, tc.trustedProxies))
		})
	}

	t.Run("Rotating a spoofed entry keeps the same address", func(t *testing.T) {
		addresses := map[string]bool{}
		for _, spoofed := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
			request, err := http.NewRequest(http.MethodPost, "/api/checkout/create-session", nil)
			assert.NoError(t, err)
			request.RemoteAddr = "10.0.0.1:5432"
			request.Header.Set("X-Forwarded-For", spoofed+", 203.0.113.7")
			addresses[ClientAddress(request, 1)] = true
		}
		assert.Equal(t, map[string]bool{"203.0.113.7": true}, addresses)
	})
}
