package refunds

import (
	"context"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"github.com/MarcGrol/stripeshop/services/orders"
	"github.com/MarcGrol/stripeshop/services/stripeapi"
)

type CreateRefundRequest struct {
	PaymentIntentID string
	AmountInCents   int64
	Reason          orders.RefundReason
	IdempotencyKey  string
	Metadata        map[string]string
}

//go:generate mockgen -source=payer.go -package refunds -destination payer_mock.go Payer
type Payer interface {
	CreateRefund(c context.Context, req CreateRefundRequest) (stripeapi.Refund, error)
	GetRefund(c context.Context, refundID string) (stripeapi.Refund, error)
	ListRefunds(c context.Context, paymentIntentID string) ([]stripeapi.Refund, error)
}

type stripePayer struct {
	client *client.API
}

func NewPayer(client *client.API) Payer {
	return &stripePayer{
		client: client,
	}
}

func (p *stripePayer) CreateRefund(c context.Context, req CreateRefundRequest) (stripeapi.Refund, error) {
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: c},
		PaymentIntent: stripe.String(req.PaymentIntentID),
		Reason:        stripe.String(string(req.Reason)),
	}
	if req.AmountInCents > 0 {
		params.Amount = stripe.Int64(req.AmountInCents)
	}
	params.SetIdempotencyKey(req.IdempotencyKey)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	refund, err := p.client.Refunds.New(params)
	if err != nil {
		return stripeapi.Refund{}, stripeapi.ProcessorError(err, "error creating refund for %s", req.PaymentIntentID)
	}

	return stripeapi.FromRefund(refund), nil
}

func (p *stripePayer) GetRefund(c context.Context, refundID string) (stripeapi.Refund, error) {
	refund, err := p.client.Refunds.Get(refundID, &stripe.RefundParams{
		Params: stripe.Params{Context: c},
	})
	if err != nil {
		return stripeapi.Refund{}, stripeapi.ProcessorError(err, "error fetching refund %s", refundID)
	}

	return stripeapi.FromRefund(refund), nil
}

func (p *stripePayer) ListRefunds(c context.Context, paymentIntentID string) ([]stripeapi.Refund, error) {
	params := &stripe.RefundListParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = c

	refunds := []stripeapi.Refund{}
	iter := p.client.Refunds.List(params)
	for iter.Next() {
		refunds = append(refunds, stripeapi.FromRefund(iter.Refund()))
	}
	if err := iter.Err(); err != nil {
		return nil, stripeapi.ProcessorError(err, "error listing refunds of %s", paymentIntentID)
	}

	return refunds, nil
}
