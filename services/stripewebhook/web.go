package stripewebhook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/MarcGrol/stripeshop/lib/mycontext"
	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/lib/myhttp"
	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/lib/mytime"
	"github.com/MarcGrol/stripeshop/services/orders"
)

const (
	maxPayloadBytes    = 65536
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

type webService struct {
	logger  mylog.Logger
	journal Journal
	service *service
}

// Use dependency injection to isolate the infrastructure and ease testing
func NewWebService(webhookSecret string, nower mytime.Nower, journal Journal, orderService *orders.Service) *webService {
	logger := mylog.New("stripewebhook")
	return &webService{
		logger:  logger,
		journal: journal,
		service: newService(webhookSecret, logger, nower, journal, orderService),
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) error {
	router.HandleFunc("/api/webhooks/stripe", s.webhookNotification()).Methods("POST")
	router.HandleFunc("/api/webhooks/events", s.recentEvents()).Methods("GET")

	return nil
}

type receivedResponse struct {
	Received bool `json:"received"`
}

func (s *webService) webhookNotification() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		// the signature covers the exact bytes received
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
		if err != nil {
			responseWriter.WriteError(c, w, 1, myerrors.NewInvalidInputError(fmt.Errorf("Webhook Error: error reading body: %s", err)))
			return
		}

		_, _, err = s.service.receive(c, payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			responseWriter.WriteError(c, w, 2, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, receivedResponse{Received: true})
	}
}

func (s *webService) recentEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		limit := defaultRecentLimit
		if value := r.URL.Query().Get("limit"); value != "" {
			parsed, err := strconv.Atoi(value)
			if err != nil || parsed <= 0 || parsed > maxRecentLimit {
				responseWriter.WriteError(c, w, 1, myerrors.NewInvalidInputErrorf("limit must be between 1 and %d", maxRecentLimit))
				return
			}
			limit = parsed
		}

		events, err := s.journal.Recent(c, limit)
		if err != nil {
			responseWriter.WriteError(c, w, 2, myerrors.NewInternalError(err))
			return
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.DataResponse{Success: true, Data: events})
	}
}
