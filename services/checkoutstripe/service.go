package checkoutstripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"

	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/services/orders"
	"github.com/MarcGrol/stripeshop/services/stripeapi"
)

const (
	sessionIDPrefix = "cs_"

	freeShippingThresholdInCents = 10000
	standardShippingInCents      = 999
	expressShippingInCents       = 1999
)

var shippingCountries = []string{"US", "CA", "GB", "AU", "IN", "DE", "FR", "JP"}

type SessionCreated struct {
	SessionID string
	URL       string
	ExpiresAt time.Time
}

type Verification struct {
	Session stripeapi.CheckoutSession
	Order   *orders.Order
}

type service struct {
	logger    mylog.Logger
	payer     Payer
	orders    *orders.Service
	clientURL string
	currency  string
}

// Use dependency injection to isolate the infrastructure and ease testing
func newService(logger mylog.Logger, payer Payer, orderService *orders.Service, clientURL string, currency string) *service {
	return &service{
		logger:    logger,
		payer:     payer,
		orders:    orderService,
		clientURL: strings.TrimSuffix(clientURL, "/"),
		currency:  currency,
	}
}

// createSession opens a hosted checkout for the cart. The cart is frozen into the session's
// and the payment intent's metadata; the order itself is only created once payment completes.
func (s *service) createSession(c context.Context, req CheckoutRequest) (SessionCreated, error) {
	req = req.Sanitize()
	err := req.Validate()
	if err != nil {
		return SessionCreated{}, err
	}

	params, err := s.sessionParams(req)
	if err != nil {
		return SessionCreated{}, err
	}

	session, err := s.payer.CreateCheckoutSession(c, params)
	if err != nil {
		return SessionCreated{}, err
	}

	s.logger.Log(c, session.ID, mylog.SeverityInfo, "Created checkout session %s for %d items (%d %s)", session.ID, len(req.Items), req.SubtotalInCents(), s.currency)

	return SessionCreated{
		SessionID: session.ID,
		URL:       session.URL,
		ExpiresAt: time.Unix(session.ExpiresAt, 0).UTC(),
	}, nil
}

func (s *service) sessionParams(req CheckoutRequest) (stripe.CheckoutSessionParams, error) {
	itemsMetadata, err := orders.EncodeItemsMetadata(req.OrderItems())
	if err != nil {
		return stripe.CheckoutSessionParams{}, myerrors.NewInvalidInputError(err)
	}

	subtotal := req.SubtotalInCents()
	sessionMetadata := map[string]string{"subtotal": fmt.Sprintf("%.2f", orders.ToMajorUnits(subtotal))}
	intentMetadata := map[string]string{}
	for k, v := range itemsMetadata {
		sessionMetadata[k] = v
		intentMetadata[k] = v
	}
	if req.CustomerEmail != "" {
		sessionMetadata[stripeapi.MetadataCustomerEmail] = req.CustomerEmail
		intentMetadata[stripeapi.MetadataCustomerEmail] = req.CustomerEmail
	}

	params := stripe.CheckoutSessionParams{
		PaymentMethodTypes:  stripe.StringSlice([]string{"card"}),
		Mode:                stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:           s.lineItems(req.Items),
		SuccessURL:          stripe.String(s.clientURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:           stripe.String(s.clientURL + "/checkout/cancel"),
		AllowPromotionCodes: stripe.Bool(true),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: intentMetadata,
		},
		InvoiceCreation: &stripe.CheckoutSessionInvoiceCreationParams{
			Enabled: stripe.Bool(true),
			InvoiceData: &stripe.CheckoutSessionInvoiceCreationInvoiceDataParams{
				Description: stripe.String("ShopEase Order"),
				Footer:      stripe.String("Thank you for shopping with ShopEase!"),
			},
		},
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(shippingCountries),
		},
		ShippingOptions: s.shippingOptions(subtotal),
	}
	params.Metadata = sessionMetadata
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	return params, nil
}

func (s *service) lineItems(items []CartItem) []*stripe.CheckoutSessionLineItemParams {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(items))
	for _, item := range items {
		description := item.Description
		if description == "" {
			description = "Product: " + item.Name
		}
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name:        stripe.String(item.Name),
			Description: stripe.String(description),
		}
		if item.Image != "" {
			productData.Images = stripe.StringSlice([]string{item.Image})
		}
		if item.ProductID != "" {
			productData.Metadata = map[string]string{"productId": item.ProductID}
		}

		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(s.currency),
				ProductData: productData,
				UnitAmount:  stripe.Int64(orders.ToMinorUnits(item.Price)),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}
	return lineItems
}

func (s *service) shippingOptions(subtotalInCents int64) []*stripe.CheckoutSessionShippingOptionParams {
	standardAmount, standardName := int64(standardShippingInCents), "Standard Shipping"
	if subtotalInCents >= freeShippingThresholdInCents {
		standardAmount, standardName = 0, "Free Shipping"
	}
	return []*stripe.CheckoutSessionShippingOptionParams{
		s.shippingOption(standardName, standardAmount, 5, 7),
		s.shippingOption("Express Shipping", expressShippingInCents, 1, 3),
	}
}

func (s *service) shippingOption(name string, amountInCents int64, minDays int64, maxDays int64) *stripe.CheckoutSessionShippingOptionParams {
	return &stripe.CheckoutSessionShippingOptionParams{
		ShippingRateData: &stripe.CheckoutSessionShippingOptionShippingRateDataParams{
			Type:        stripe.String("fixed_amount"),
			DisplayName: stripe.String(name),
			FixedAmount: &stripe.CheckoutSessionShippingOptionShippingRateDataFixedAmountParams{
				Amount:   stripe.Int64(amountInCents),
				Currency: stripe.String(s.currency),
			},
			DeliveryEstimate: &stripe.CheckoutSessionShippingOptionShippingRateDataDeliveryEstimateParams{
				Minimum: &stripe.CheckoutSessionShippingOptionShippingRateDataDeliveryEstimateMinimumParams{
					Unit:  stripe.String("business_day"),
					Value: stripe.Int64(minDays),
				},
				Maximum: &stripe.CheckoutSessionShippingOptionShippingRateDataDeliveryEstimateMaximumParams{
					Unit:  stripe.String("business_day"),
					Value: stripe.Int64(maxDays),
				},
			},
		},
	}
}

func (s *service) getSession(c context.Context, sessionID string) (stripeapi.CheckoutSession, error) {
	err := validateSessionID(sessionID)
	if err != nil {
		return stripeapi.CheckoutSession{}, err
	}
	return s.payer.GetCheckoutSession(c, sessionID)
}

// verify reports the processor's view of the session. A paid session whose completion event
// has not arrived yet is materialized here; the webhook later finds the order in place.
func (s *service) verify(c context.Context, sessionID string) (Verification, error) {
	session, err := s.getSession(c, sessionID)
	if err != nil {
		return Verification{}, err
	}

	order, found, err := s.orders.Find(c, orders.SessionKey(sessionID))
	if err != nil {
		return Verification{}, err
	}
	if found {
		return Verification{Session: session, Order: &order}, nil
	}
	if session.PaymentStatus != "paid" {
		return Verification{Session: session}, nil
	}

	snapshot, err := session.Snapshot()
	if err != nil {
		s.logger.Log(c, sessionID, mylog.SeverityWarn, "Items of session %s unavailable: %s", sessionID, err)
	}
	order, created, err := s.orders.Materialize(c, snapshot, orders.Cause{
		ID:   sessionID,
		Type: "api.checkout.verify",
	})
	if err != nil {
		return Verification{}, err
	}
	if created {
		s.logger.Log(c, sessionID, mylog.SeverityInfo, "Materialized %s ahead of its webhook", order)
	}

	return Verification{Session: session, Order: &order}, nil
}

func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return myerrors.NewInvalidInputErrorf("Session ID is required")
	}
	if !strings.HasPrefix(sessionID, sessionIDPrefix) {
		return myerrors.NewInvalidInputErrorf("Invalid Session ID format")
	}
	return nil
}
