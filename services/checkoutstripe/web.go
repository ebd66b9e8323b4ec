package checkoutstripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/MarcGrol/stripeshop/lib/mycontext"
	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/lib/myhttp"
	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/lib/myratelimit"
	"github.com/MarcGrol/stripeshop/services/orders"
	"github.com/MarcGrol/stripeshop/services/stripeapi"
)

type webService struct {
	logger  mylog.Logger
	limiter *myratelimit.Limiter
	service *service
}

// Use dependency injection to isolate the infrastructure and ease testing
func NewWebService(payer Payer, orderService *orders.Service, limiter *myratelimit.Limiter, clientURL string, currency string) *webService {
	logger := mylog.New("checkoutstripe")
	return &webService{
		logger:  logger,
		limiter: limiter,
		service: newService(logger, payer, orderService, clientURL, currency),
	}
}

func (s *webService) RegisterEndpoints(c context.Context, router *mux.Router) error {
	router.Handle("/api/checkout/create-session", s.limiter.Middleware("checkout.create-session")(s.createSession())).Methods("POST")
	router.HandleFunc("/api/checkout/session/{sessionId}", s.getSession()).Methods("GET")
	router.HandleFunc("/api/checkout/verify/{sessionId}", s.verifyPayment()).Methods("GET")
	router.Handle("/api/checkout/create-payment-intent", s.limiter.Middleware("checkout.create-payment-intent")(s.createPaymentIntent())).Methods("POST")
	router.HandleFunc("/api/checkout/cancel-payment-intent", s.cancelPaymentIntent()).Methods("POST")
	router.HandleFunc("/api/checkout/payment/{paymentIntentId}", s.getPaymentDetails()).Methods("GET")

	return nil
}

type createSessionResponse struct {
	Success   bool      `json:"success"`
	SessionID string    `json:"sessionId"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type createPaymentIntentResponse struct {
	Success         bool   `json:"success"`
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type cancelPaymentIntentRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

type cancelledView struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type paymentView struct {
	ID            string    `json:"id"`
	Amount        float64   `json:"amount"`
	Status        string    `json:"status"`
	Currency      string    `json:"currency"`
	PaymentMethod []string  `json:"paymentMethod"`
	ChargeID      string    `json:"chargeId,omitempty"`
	ReceiptURL    string    `json:"receiptUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type sessionView struct {
	ID              string              `json:"id"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"paymentStatus"`
	CustomerEmail   string              `json:"customerEmail"`
	CustomerName    string              `json:"customerName,omitempty"`
	TotalAmount     float64             `json:"totalAmount"`
	Subtotal        float64             `json:"subtotal"`
	ShippingCost    float64             `json:"shippingCost"`
	Tax             float64             `json:"tax"`
	Discount        float64             `json:"discount"`
	Currency        string              `json:"currency"`
	ShippingAddress *orders.AddressView `json:"shippingAddress,omitempty"`
	PaymentIntentID string              `json:"paymentIntentId,omitempty"`
	InvoiceID       string              `json:"invoiceId,omitempty"`
}

type verificationView struct {
	PaymentStatus string  `json:"paymentStatus"`
	Status        string  `json:"status"`
	AmountTotal   float64 `json:"amountTotal"`
	Currency      string  `json:"currency"`
	CustomerEmail string  `json:"customerEmail"`
	OrderCreated  bool    `json:"orderCreated"`
	OrderID       string  `json:"orderId,omitempty"`
}

func (s *webService) createSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		req, err := NewFromRequest(r)
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		created, err := s.service.createSession(c, req)
		if err != nil {
			responseWriter.WriteError(c, w, 2, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, createSessionResponse{
			Success:   true,
			SessionID: created.SessionID,
			URL:       created.URL,
			ExpiresAt: created.ExpiresAt,
		})
	}
}

func (s *webService) getSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		session, err := s.service.getSession(c, mux.Vars(r)["sessionId"])
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.DataResponse{Success: true, Data: newSessionView(session)})
	}
}

func (s *webService) verifyPayment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		verification, err := s.service.verify(c, mux.Vars(r)["sessionId"])
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		session := verification.Session
		view := verificationView{
			PaymentStatus: session.PaymentStatus,
			Status:        session.Status,
			AmountTotal:   orders.ToMajorUnits(session.AmountTotal),
			Currency:      session.Currency,
			CustomerEmail: customerEmail(session),
		}
		if verification.Order != nil {
			view.OrderCreated = true
			view.OrderID = verification.Order.UID
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.DataResponse{Success: true, Data: view})
	}
}

func (s *webService) createPaymentIntent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		req := PaymentIntentRequest{}
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			responseWriter.WriteError(c, w, 1, myerrors.NewInvalidInputError(fmt.Errorf("error parsing request: %s", err)))
			return
		}

		created, err := s.service.createPaymentIntent(c, req)
		if err != nil {
			responseWriter.WriteError(c, w, 2, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, createPaymentIntentResponse{
			Success:         true,
			ClientSecret:    created.ClientSecret,
			PaymentIntentID: created.PaymentIntentID,
		})
	}
}

func (s *webService) cancelPaymentIntent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		req := cancelPaymentIntentRequest{}
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			responseWriter.WriteError(c, w, 1, myerrors.NewInvalidInputError(fmt.Errorf("error parsing request: %s", err)))
			return
		}

		intent, err := s.service.cancelPaymentIntent(c, req.PaymentIntentID)
		if err != nil {
			responseWriter.WriteError(c, w, 2, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.DataResponse{
			Success: true,
			Message: "Payment intent cancelled",
			Data:    cancelledView{ID: intent.ID, Status: string(intent.Status)},
		})
	}
}

func (s *webService) getPaymentDetails() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(s.logger)

		details, err := s.service.paymentDetails(c, mux.Vars(r)["paymentIntentId"])
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.DataResponse{
			Success: true,
			Data: paymentView{
				ID:            details.ID,
				Amount:        orders.ToMajorUnits(details.AmountInCents),
				Status:        details.Status,
				Currency:      details.Currency,
				PaymentMethod: details.PaymentMethodTypes,
				ChargeID:      details.ChargeID,
				ReceiptURL:    details.ReceiptURL,
				CreatedAt:     details.CreatedAt,
			},
		})
	}
}

func newSessionView(session stripeapi.CheckoutSession) sessionView {
	view := sessionView{
		ID:              session.ID,
		Status:          session.Status,
		PaymentStatus:   session.PaymentStatus,
		CustomerEmail:   customerEmail(session),
		TotalAmount:     orders.ToMajorUnits(session.AmountTotal),
		Subtotal:        orders.ToMajorUnits(session.AmountSubtotal),
		Currency:        session.Currency,
		PaymentIntentID: session.PaymentIntent.String(),
		InvoiceID:       session.Invoice.String(),
	}
	if session.CustomerDetails != nil {
		view.CustomerName = session.CustomerDetails.Name
	}
	if session.TotalDetails != nil {
		view.ShippingCost = orders.ToMajorUnits(session.TotalDetails.AmountShipping)
		view.Tax = orders.ToMajorUnits(session.TotalDetails.AmountTax)
		view.Discount = orders.ToMajorUnits(session.TotalDetails.AmountDiscount)
	}
	snapshot, _ := session.Snapshot()
	view.ShippingAddress = orders.NewAddressView(snapshot.ShippingAddress)
	return view
}

func customerEmail(session stripeapi.CheckoutSession) string {
	if session.CustomerEmail != "" {
		return session.CustomerEmail
	}
	if session.CustomerDetails != nil {
		return session.CustomerDetails.Email
	}
	return ""
}
