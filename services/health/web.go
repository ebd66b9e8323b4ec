package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/MarcGrol/stripeshop/lib/mycontext"
	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/lib/myhttp"
	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/lib/mystore"
	"github.com/MarcGrol/stripeshop/lib/mytime"
	"github.com/MarcGrol/stripeshop/services/orders"
	"github.com/MarcGrol/stripeshop/services/stripewebhook"
)

const probeUID = "health-probe"

type webService struct {
	logger     mylog.Logger
	nower      mytime.Nower
	journal    stripewebhook.Journal
	orderStore mystore.Store[orders.Order]
}

// Use dependency injection to isolate the infrastructure and ease testing
func NewWebService(nower mytime.Nower, journal stripewebhook.Journal, orderStore mystore.Store[orders.Order]) *webService {
	return &webService{
		logger:     mylog.New("health"),
		nower:      nower,
		journal:    journal,
		orderStore: orderStore,
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) error {
	router.HandleFunc("/health", s.healthPage()).Methods("GET")
	router.HandleFunc("/_ah/warmup", s.healthPage()).Methods("GET")

	return nil
}

type healthView struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *webService) healthPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		err := s.check(c)
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, healthView{
			Status:    "ok",
			Timestamp: s.nower.Now(),
		})
	}
}

func (s *webService) check(c context.Context) error {
	_, err := s.journal.Recent(c, 1)
	if err != nil {
		return myerrors.NewUnavailableError(fmt.Errorf("webhook journal unavailable: %s", err)).WithDetail("component", "journal")
	}

	_, _, err = s.orderStore.Get(c, probeUID)
	if err != nil {
		return myerrors.NewUnavailableError(fmt.Errorf("order store unavailable: %s", err)).WithDetail("component", "orders")
	}

	return nil
}
