package checkoutstripe

import (
	"context"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"

	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/services/orders"
	"github.com/MarcGrol/stripeshop/services/stripeapi"
)

const (
	paymentIntentIDPrefix  = "pi_"
	maxMetadataKeys        = 50
	maxMetadataKeyLength   = 40
	maxMetadataValueLength = 500
)

// Metadata keys the order ledger reads back from processor objects; callers cannot set them.
var reservedMetadataKeys = map[string]bool{
	stripeapi.MetadataCustomerEmail:  true,
	stripeapi.MetadataOrderUID:       true,
	stripeapi.MetadataReservationUID: true,
}

type PaymentIntentRequest struct {
	Amount        float64           `json:"amount"`
	CustomerEmail string            `json:"customerEmail"`
	Metadata      map[string]string `json:"metadata"`
}

type PaymentIntentCreated struct {
	PaymentIntentID string
	ClientSecret    string
}

type PaymentDetails struct {
	ID                 string
	AmountInCents      int64
	Status             string
	Currency           string
	PaymentMethodTypes []string
	ChargeID           string
	ReceiptURL         string
	CreatedAt          time.Time
}

func (r PaymentIntentRequest) validate() (int64, error) {
	amountInCents, err := orders.ParseMinorUnits(r.Amount)
	if err != nil || amountInCents <= 0 {
		return 0, myerrors.NewInvalidInputErrorf("Valid amount is required")
	}
	if amountInCents < minOrderTotalInCents {
		return 0, myerrors.NewInvalidInputErrorf("Amount must be at least $%.2f", orders.ToMajorUnits(minOrderTotalInCents))
	}
	if len(r.Metadata) > maxMetadataKeys {
		return 0, myerrors.NewInvalidInputErrorf("Metadata cannot have more than %d keys", maxMetadataKeys)
	}
	for k, v := range r.Metadata {
		if len(k) > maxMetadataKeyLength || len(v) > maxMetadataValueLength {
			return 0, myerrors.NewInvalidInputErrorf("Metadata %q exceeds the allowed length", k)
		}
		if reservedMetadataKeys[k] || strings.HasPrefix(k, orders.ItemsMetadataPrefix) {
			return 0, myerrors.NewInvalidInputErrorf("Metadata key %q is reserved", k)
		}
	}
	return amountInCents, nil
}

// createPaymentIntent starts a custom payment flow: the client confirms the intent itself,
// and its webhooks reconcile the order without any checkout session.
func (s *service) createPaymentIntent(c context.Context, req PaymentIntentRequest) (PaymentIntentCreated, error) {
	amountInCents, err := req.validate()
	if err != nil {
		return PaymentIntentCreated{}, err
	}

	params := stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountInCents),
		Currency: stripe.String(s.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.CustomerEmail != "" {
		customerID, err := s.payer.FindOrCreateCustomer(c, req.CustomerEmail)
		if err != nil {
			return PaymentIntentCreated{}, err
		}
		params.Customer = stripe.String(customerID)
		params.AddMetadata(stripeapi.MetadataCustomerEmail, req.CustomerEmail)
	}

	intent, err := s.payer.CreatePaymentIntent(c, params)
	if err != nil {
		return PaymentIntentCreated{}, err
	}

	s.logger.Log(c, intent.ID, mylog.SeverityInfo, "Created payment intent %s for %d %s", intent.ID, amountInCents, s.currency)

	return PaymentIntentCreated{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
	}, nil
}

func (s *service) cancelPaymentIntent(c context.Context, paymentIntentID string) (stripe.PaymentIntent, error) {
	err := validatePaymentIntentID(paymentIntentID)
	if err != nil {
		return stripe.PaymentIntent{}, err
	}

	intent, err := s.payer.CancelPaymentIntent(c, paymentIntentID)
	if err != nil {
		return stripe.PaymentIntent{}, err
	}

	s.logger.Log(c, paymentIntentID, mylog.SeverityInfo, "Cancelled payment intent %s (%s)", paymentIntentID, intent.Status)

	return intent, nil
}

func (s *service) paymentDetails(c context.Context, paymentIntentID string) (PaymentDetails, error) {
	err := validatePaymentIntentID(paymentIntentID)
	if err != nil {
		return PaymentDetails{}, err
	}

	intent, err := s.payer.GetPaymentIntent(c, paymentIntentID)
	if err != nil {
		return PaymentDetails{}, err
	}

	return PaymentDetails{
		ID:                 intent.ID,
		AmountInCents:      intent.Amount,
		Status:             intent.Status,
		Currency:           intent.Currency,
		PaymentMethodTypes: intent.PaymentMethodTypes,
		ChargeID:           intent.LatestCharge.ID,
		ReceiptURL:         intent.ReceiptURL(),
		CreatedAt:          time.Unix(intent.Created, 0).UTC(),
	}, nil
}

func validatePaymentIntentID(paymentIntentID string) error {
	if paymentIntentID == "" {
		return myerrors.NewInvalidInputErrorf("Payment Intent ID is required")
	}
	if !strings.HasPrefix(paymentIntentID, paymentIntentIDPrefix) {
		return myerrors.NewInvalidInputErrorf("Invalid Payment Intent ID format")
	}
	return nil
}
