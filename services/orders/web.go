package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/MarcGrol/stripeshop/lib/mycontext"
	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/lib/myhttp"
	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/lib/myuuid"
)

type webService struct {
	logger  mylog.Logger
	uuider  myuuid.UUIDer
	service *Service
}

func NewWebService(service *Service, uuider myuuid.UUIDer) *webService {
	return &webService{
		logger:  mylog.New("orders"),
		uuider:  uuider,
		service: service,
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) error {
	router.HandleFunc("/api/orders", s.listOrders()).Methods("GET")
	router.HandleFunc("/api/orders/session/{sessionId}", s.getOrder("sessionId", SessionKey)).Methods("GET")
	router.HandleFunc("/api/orders/payment-intent/{paymentIntentId}", s.getOrder("paymentIntentId", PaymentIntentKey)).Methods("GET")
	router.HandleFunc("/api/orders/invoice/{invoiceId}", s.getOrder("invoiceId", InvoiceKey)).Methods("GET")
	router.HandleFunc("/api/orders/{orderId}", s.getOrder("orderId", OrderKey)).Methods("GET")
	router.HandleFunc("/api/orders/{orderId}/status", s.updateStatus()).Methods("PUT")

	return nil
}

func (s *webService) listOrders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		orders, err := s.service.List(c)
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		views := make([]OrderView, 0, len(orders))
		for _, o := range orders {
			views = append(views, NewOrderView(o))
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.DataResponse{Success: true, Data: views})
	}
}

func (s *webService) getOrder(pathVar string, toKey func(string) Key) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		key := toKey(mux.Vars(r)[pathVar])

		order, found, err := s.service.Find(c, key)
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}
		if !found {
			responseWriter.WriteError(c, w, 2, myerrors.NewNotFoundError(fmt.Errorf("Order not found")))
			return
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.DataResponse{Success: true, Data: NewOrderView(order)})
	}
}

type updateStatusRequest struct {
	Status OrderStatus `json:"status"`
}

func (s *webService) updateStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		orderUID := mux.Vars(r)["orderId"]

		req := updateStatusRequest{}
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			responseWriter.WriteError(c, w, 1, myerrors.NewInvalidInputError(fmt.Errorf("error parsing request: %s", err)))
			return
		}

		order, err := s.service.UpdateFulfillment(c, orderUID, req.Status, Cause{
			ID:   s.uuider.Create(),
			Type: "api.order.status",
		})
		if err != nil {
			responseWriter.WriteError(c, w, 2, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.DataResponse{
			Success: true,
			Message: fmt.Sprintf("Order status updated to %s", order.Status),
			Data:    NewOrderView(order),
		})
	}
}
