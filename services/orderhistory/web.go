package orderhistory

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/MarcGrol/stripeshop/lib/mycontext"
	"github.com/MarcGrol/stripeshop/lib/myhttp"
	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/lib/mypubsub"
	"github.com/MarcGrol/stripeshop/lib/mystore"
	"github.com/MarcGrol/stripeshop/lib/mytime"
	"github.com/MarcGrol/stripeshop/services/orders"
	"github.com/MarcGrol/stripeshop/services/orders/orderevents"
)

type webService struct {
	logger  mylog.Logger
	service *service
}

// Use dependency injection to isolate the infrastructure and ease testing
func NewWebService(nower mytime.Nower, subscriber mypubsub.PubSub, timelineStore mystore.Store[Timeline], baseURL string) *webService {
	logger := mylog.New("orderhistory")
	return &webService{
		logger:  logger,
		service: newService(logger, nower, subscriber, timelineStore, baseURL),
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) error {
	router.HandleFunc(eventPath, s.handleEventEnvelope()).Methods("POST")
	router.HandleFunc("/api/orders/{orderId}/history", s.getHistory()).Methods("GET")

	return s.service.Subscribe(c)
}

type entryView struct {
	EventType     string    `json:"eventType"`
	Status        string    `json:"status,omitempty"`
	PaymentStatus string    `json:"paymentStatus,omitempty"`
	Amount        float64   `json:"amount,omitempty"`
	RefundID      string    `json:"refundId,omitempty"`
	DisputeID     string    `json:"disputeId,omitempty"`
	Description   string    `json:"description"`
	Cause         string    `json:"cause"`
	Timestamp     time.Time `json:"timestamp"`
}

type historyView struct {
	OrderID string      `json:"orderId"`
	Entries []entryView `json:"entries"`
}

func (s *webService) handleEventEnvelope() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		err := orderevents.DispatchEvent(c, r.Body, s.service)
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.SuccessResponse{
			Message: "Successfully processed event",
		})
	}
}

func (s *webService) getHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		timeline, err := s.service.history(c, mux.Vars(r)["orderId"])
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		entries := make([]entryView, 0, len(timeline.Entries))
		for _, e := range timeline.Entries {
			entries = append(entries, entryView{
				EventType:     e.EventType,
				Status:        e.Status,
				PaymentStatus: e.PaymentStatus,
				Amount:        orders.ToMajorUnits(e.AmountInCents),
				RefundID:      e.RefundID,
				DisputeID:     e.DisputeID,
				Description:   e.Description,
				Cause:         e.CauseType + ":" + e.CauseID,
				Timestamp:     e.Timestamp,
			})
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.DataResponse{
			Success: true,
			Data:    historyView{OrderID: timeline.OrderUID, Entries: entries},
		})
	}
}
