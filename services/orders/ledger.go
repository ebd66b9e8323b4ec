package orders

import (
	"context"
	"fmt"

	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/lib/mystore"
)

type KeyKind string

const (
	KeyOrder         KeyKind = "order"
	KeySession       KeyKind = "session"
	KeyPaymentIntent KeyKind = "paymentIntent"
	KeyInvoice       KeyKind = "invoice"
)

// Key correlates an inbound event or request with an order.
type Key struct {
	Kind  KeyKind
	Value string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Kind, k.Value)
}

func OrderKey(uid string) Key          { return Key{Kind: KeyOrder, Value: uid} }
func SessionKey(sessionID string) Key  { return Key{Kind: KeySession, Value: sessionID} }
func PaymentIntentKey(piID string) Key { return Key{Kind: KeyPaymentIntent, Value: piID} }
func InvoiceKey(invoiceID string) Key  { return Key{Kind: KeyInvoice, Value: invoiceID} }

// Ledger persists one order per checkout attempt. Orders created from a checkout
// session are stored under the session id, so the store key arbitrates duplicate creation.
type Ledger struct {
	store mystore.Store[Order]
}

func NewLedger(store mystore.Store[Order]) *Ledger {
	return &Ledger{
		store: store,
	}
}

func (l *Ledger) RunInTransaction(c context.Context, f func(c context.Context) error) error {
	return l.store.RunInTransaction(c, f)
}

func (l *Ledger) Put(c context.Context, order Order) error {
	err := l.store.Put(c, order.UID, order)
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error storing order %s: %s", order.UID, err))
	}
	return nil
}

func (l *Ledger) List(c context.Context) ([]Order, error) {
	orders, err := l.store.Query(c, nil, "-CreatedAt")
	if err != nil {
		return nil, myerrors.NewInternalError(fmt.Errorf("error listing orders: %s", err))
	}
	return orders, nil
}

func (l *Ledger) Find(c context.Context, key Key) (Order, bool, error) {
	if key.Value == "" {
		return Order{}, false, nil
	}

	switch key.Kind {
	case KeyOrder:
		return l.get(c, key.Value)
	case KeySession:
		order, found, err := l.get(c, key.Value)
		if err != nil || (found && order.SessionID == key.Value) {
			return order, found, err
		}
		return l.findOne(c, "SessionID", key.Value)
	case KeyPaymentIntent:
		return l.findOne(c, "PaymentIntentID", key.Value)
	case KeyInvoice:
		return l.findOne(c, "InvoiceID", key.Value)
	default:
		return Order{}, false, myerrors.NewInternalError(fmt.Errorf("unsupported key kind %s", key.Kind))
	}
}

func (l *Ledger) get(c context.Context, uid string) (Order, bool, error) {
	order, found, err := l.store.Get(c, uid)
	if err != nil {
		return Order{}, false, myerrors.NewInternalError(fmt.Errorf("error fetching order %s: %s", uid, err))
	}
	return order, found, nil
}

func (l *Ledger) findOne(c context.Context, field string, value string) (Order, bool, error) {
	found, err := l.store.Query(c, []mystore.Filter{{Field: field, Compare: "=", Value: value}}, "CreatedAt")
	if err != nil {
		return Order{}, false, myerrors.NewInternalError(fmt.Errorf("error querying orders on %s=%s: %s", field, value, err))
	}
	if len(found) == 0 {
		return Order{}, false, nil
	}
	// the oldest order owns the correlation key
	return found[0], true, nil
}
