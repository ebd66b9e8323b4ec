package myratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/MarcGrol/stripeshop/lib/mytime"
)

func TestLimiter(t *testing.T) {

	t.Run("Burst is allowed then denied with retry hint", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// given
		nower := mytime.NewMockNower(ctrl)
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		sut := New(Config{PerMinute: 10, Burst: 10, IdleTimeout: time.Minute}, nower)

		// when
		for i := 0; i < 10; i++ {
			allowed, _ := sut.Allow("203.0.113.7")
			assert.True(t, allowed)
		}
		allowed, retryAfter := sut.Allow("203.0.113.7")

		// then
		assert.False(t, allowed)
		assert.InDelta(t, 6.0, retryAfter.Seconds(), 0.01)

		allowed, _ = sut.Allow("198.51.100.1")
		assert.True(t, allowed, "other keys have their own bucket")
	})

	t.Run("Tokens refill over time", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// given
		now := mytime.ExampleTime
		nower := mytime.NewMockNower(ctrl)
		nower.EXPECT().Now().DoAndReturn(func() time.Time { return now }).AnyTimes()
		sut := New(Config{PerMinute: 60, Burst: 1, IdleTimeout: time.Minute}, nower)

		// when
		allowed, _ := sut.Allow("k")
		assert.True(t, allowed)
		allowed, _ = sut.Allow("k")
		assert.False(t, allowed)
		now = now.Add(time.Second)
		allowed, _ = sut.Allow("k")

		// then
		assert.True(t, allowed)
	})

	t.Run("Sweep evicts idle buckets", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// given
		now := mytime.ExampleTime
		nower := mytime.NewMockNower(ctrl)
		nower.EXPECT().Now().DoAndReturn(func() time.Time { return now }).AnyTimes()
		sut := New(Config{PerMinute: 10, Burst: 10, IdleTimeout: time.Minute}, nower)
		sut.Allow("old")
		now = now.Add(30 * time.Second)
		sut.Allow("recent")

		// when
		now = now.Add(45 * time.Second)
		evicted := sut.Sweep()

		// then
		assert.Equal(t, 1, evicted)
		assert.Equal(t, 1, sut.Size())
	})

	t.Run("Middleware answers 429", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// given
		nower := mytime.NewMockNower(ctrl)
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		sut := New(Config{PerMinute: 1, Burst: 1, IdleTimeout: time.Minute}, nower)
		defer sut.Close()

		router := mux.NewRouter()
		router.Handle("/pay", sut.Middleware("pay")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))).Methods("POST")

		call := func() *httptest.ResponseRecorder {
			request, err := http.NewRequest(http.MethodPost, "/pay", nil)
			assert.NoError(t, err)
			request.RemoteAddr = "203.0.113.7:1234"
			response := httptest.NewRecorder()
			router.ServeHTTP(response, request)
			return response
		}

		// when
		first := call()
		second := call()

		// then
		assert.Equal(t, 200, first.Code)
		assert.Equal(t, 429, second.Code)
		assert.Equal(t, "60", second.Header().Get("Retry-After"))
		resp := tooManyRequestsResponse{}
		assert.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
		assert.Equal(t, 60, resp.RetryAfter)
	})

	t.Run("Spoofed forwarded address does not get a fresh bucket", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// given
		nower := mytime.NewMockNower(ctrl)
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		sut := New(Config{PerMinute: 1, Burst: 1, IdleTimeout: time.Minute, TrustedProxies: 1}, nower)
		defer sut.Close()

		router := mux.NewRouter()
		router.Handle("/pay", sut.Middleware("pay")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))).Methods("POST")

		call := func(spoofed string) *httptest.ResponseRecorder {
			request, err := http.NewRequest(http.MethodPost, "/pay", nil)
			assert.NoError(t, err)
			request.RemoteAddr = "10.0.0.1:1234"
			request.Header.Set("X-Forwarded-For", spoofed+", 203.0.113.7")
			response := httptest.NewRecorder()
			router.ServeHTTP(response, request)
			return response
		}

		// when
		first := call("198.51.100.1")
		second := call("198.51.100.2")

		// then
		assert.Equal(t, 200, first.Code)
		assert.Equal(t, 429, second.Code)
	})
}
