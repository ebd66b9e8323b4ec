package refunds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/MarcGrol/stripeshop/lib/mycontext"
	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/lib/myhttp"
	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/lib/myuuid"
	"github.com/MarcGrol/stripeshop/services/orders"
	"github.com/MarcGrol/stripeshop/services/stripeapi"
)

type webService struct {
	logger  mylog.Logger
	service *service
}

// Use dependency injection to isolate the infrastructure and ease testing
func NewWebService(uuider myuuid.UUIDer, payer Payer, orderService *orders.Service) *webService {
	logger := mylog.New("refunds")
	return &webService{
		logger:  logger,
		service: newService(logger, uuider, payer, orderService),
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) error {
	router.HandleFunc("/api/refunds/full", s.fullRefund()).Methods("POST")
	router.HandleFunc("/api/refunds/partial", s.partialRefund()).Methods("POST")
	router.HandleFunc("/api/refunds/payment-intent", s.paymentIntentRefund()).Methods("POST")
	router.HandleFunc("/api/refunds/order/{orderId}", s.orderRefunds()).Methods("GET")
	router.HandleFunc("/api/refunds/{refundId}", s.getRefund()).Methods("GET")

	return nil
}

type fullRefundRequest struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

type partialRefundRequest struct {
	OrderID string  `json:"orderId"`
	Amount  float64 `json:"amount"`
	Reason  string  `json:"reason"`
}

// Amount is optional: without it the remainder is refunded.
type paymentIntentRefundRequest struct {
	PaymentIntentID string   `json:"paymentIntentId"`
	Amount          *float64 `json:"amount"`
	Reason          string   `json:"reason"`
}

const (
	idempotencyKeyHeader    = "Idempotency-Key"
	maxIdempotencyKeyLength = 255
)

type refundOrderView struct {
	ID              string               `json:"id"`
	TotalAmount     float64              `json:"totalAmount"`
	RefundedAmount  float64              `json:"refundedAmount"`
	RemainingAmount float64              `json:"remainingAmount"`
	Status          orders.OrderStatus   `json:"status"`
	PaymentStatus   orders.PaymentStatus `json:"paymentStatus"`
}

type refundResponse struct {
	RefundID string          `json:"refundId"`
	Amount   float64         `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
	Order    refundOrderView `json:"order"`
}

type refundView struct {
	ID              string    `json:"id"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason,omitempty"`
	PaymentIntentID string    `json:"paymentIntentId,omitempty"`
	ChargeID        string    `json:"chargeId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type orderRefundsResponse struct {
	OrderID                  string              `json:"orderId"`
	TotalAmount              float64             `json:"totalAmount"`
	RefundedAmount           float64             `json:"refundedAmount"`
	RefundableAmount         float64             `json:"refundableAmount"`
	Refunds                  []orders.RefundView `json:"refunds"`
	StripeRefunds            []refundView        `json:"stripeRefunds"`
	StripeRefundsUnavailable bool                `json:"stripeRefundsUnavailable,omitempty"`
}

func (s *webService) fullRefund() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		req := fullRefundRequest{}
		err := decodeRequest(r, &req)
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}
		if req.OrderID == "" {
			responseWriter.WriteError(c, w, 2, myerrors.NewInvalidInputErrorf("Order id is required"))
			return
		}
		refundReq, err := newRefundRequest(r, req.Reason)
		if err != nil {
			responseWriter.WriteError(c, w, 3, err)
			return
		}

		result, err := s.service.fullRefund(c, req.OrderID, refundReq)
		if err != nil {
			responseWriter.WriteError(c, w, 4, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.DataResponse{
			Success: true,
			Message: "Full refund processed successfully",
			Data:    newRefundResponse(result),
		})
	}
}

func (s *webService) partialRefund() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		req := partialRefundRequest{}
		err := decodeRequest(r, &req)
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}
		if req.OrderID == "" {
			responseWriter.WriteError(c, w, 2, myerrors.NewInvalidInputErrorf("Order id is required"))
			return
		}
		amountInCents, err := parseRefundAmount(req.Amount)
		if err != nil {
			responseWriter.WriteError(c, w, 3, err)
			return
		}
		refundReq, err := newRefundRequest(r, req.Reason)
		if err != nil {
			responseWriter.WriteError(c, w, 4, err)
			return
		}

		result, err := s.service.partialRefund(c, req.OrderID, amountInCents, refundReq)
		if err != nil {
			responseWriter.WriteError(c, w, 5, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.DataResponse{
			Success: true,
			Message: "Partial refund processed successfully",
			Data:    newRefundResponse(result),
		})
	}
}

func (s *webService) paymentIntentRefund() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		req := paymentIntentRefundRequest{}
		err := decodeRequest(r, &req)
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}
		var amountInCents *int64
		if req.Amount != nil {
			parsed, err := parseRefundAmount(*req.Amount)
			if err != nil {
				responseWriter.WriteError(c, w, 2, err)
				return
			}
			amountInCents = &parsed
		}
		refundReq, err := newRefundRequest(r, req.Reason)
		if err != nil {
			responseWriter.WriteError(c, w, 3, err)
			return
		}

		result, err := s.service.refundPaymentIntent(c, req.PaymentIntentID, amountInCents, refundReq)
		if err != nil {
			responseWriter.WriteError(c, w, 4, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.DataResponse{
			Success: true,
			Message: "Refund processed successfully",
			Data:    newRefundResponse(result),
		})
	}
}

func (s *webService) getRefund() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		refund, err := s.service.getRefund(c, mux.Vars(r)["refundId"])
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.DataResponse{Success: true, Data: newRefundView(refund)})
	}
}

func (s *webService) orderRefunds() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		result, err := s.service.orderRefunds(c, mux.Vars(r)["orderId"])
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		processorRefunds := make([]refundView, 0, len(result.ProcessorRefunds))
		for _, refund := range result.ProcessorRefunds {
			processorRefunds = append(processorRefunds, newRefundView(refund))
		}
		order := result.Order

		responseWriter.Write(c, w, http.StatusOK, myhttp.DataResponse{
			Success: true,
			Data: orderRefundsResponse{
				OrderID:                  order.UID,
				TotalAmount:              orders.ToMajorUnits(order.TotalAmountInCents),
				RefundedAmount:           orders.ToMajorUnits(order.RefundedAmountInCents),
				RefundableAmount:         orders.ToMajorUnits(order.RemainingRefundableInCents()),
				Refunds:                  orders.NewRefundViews(order.Refunds),
				StripeRefunds:            processorRefunds,
				StripeRefundsUnavailable: result.ProcessorRefundsError != nil,
			},
		})
	}
}

func decodeRequest(r *http.Request, req any) error {
	err := json.NewDecoder(r.Body).Decode(req)
	if err != nil {
		return myerrors.NewInvalidInputError(fmt.Errorf("error parsing request: %s", err))
	}
	return nil
}

// parseRefundAmount converts a requested amount into cents. Amounts that round to nothing
// are rejected, as are amounts beyond anything an order can total.
func parseRefundAmount(amount float64) (int64, error) {
	if amount > orders.MaxAmount {
		return 0, myerrors.NewInvalidInputErrorf("Refund amount exceeds maximum refundable amount").
			WithDetail("requestedAmount", amount)
	}
	amountInCents, err := orders.ParseMinorUnits(amount)
	if err != nil || amountInCents <= 0 {
		return 0, myerrors.NewInvalidInputErrorf("Valid refund amount is required")
	}
	return amountInCents, nil
}

func newRefundRequest(r *http.Request, reason string) (refundRequest, error) {
	parsed, err := ParseReason(reason)
	if err != nil {
		return refundRequest{}, err
	}
	key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLength {
		return refundRequest{}, myerrors.NewInvalidInputErrorf("%s exceeds %d characters", idempotencyKeyHeader, maxIdempotencyKeyLength)
	}
	return refundRequest{Reason: parsed, IdempotencyKey: key}, nil
}

func newRefundResponse(result refundResult) refundResponse {
	order := result.Order
	return refundResponse{
		RefundID: result.Refund.ID,
		Amount:   orders.ToMajorUnits(result.Refund.Amount),
		Currency: result.Refund.Currency,
		Status:   result.Refund.Status,
		Order: refundOrderView{
			ID:              order.UID,
			TotalAmount:     orders.ToMajorUnits(order.TotalAmountInCents),
			RefundedAmount:  orders.ToMajorUnits(order.RefundedAmountInCents),
			RemainingAmount: orders.ToMajorUnits(order.RemainingRefundableInCents()),
			Status:          order.Status,
			PaymentStatus:   order.PaymentStatus,
		},
	}
}

func newRefundView(refund stripeapi.Refund) refundView {
	return refundView{
		ID:              refund.ID,
		Amount:          orders.ToMajorUnits(refund.Amount),
		Currency:        refund.Currency,
		Status:          refund.Status,
		Reason:          refund.Reason,
		PaymentIntentID: refund.PaymentIntent.String(),
		ChargeID:        refund.Charge.String(),
		CreatedAt:       time.Unix(refund.Created, 0).UTC(),
	}
}
