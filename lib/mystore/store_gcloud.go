package mystore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"

	"cloud.google.com/go/datastore"

	"github.com/MarcGrol/stripeshop/lib/mylog"
)

const (
	maxTransactionAttempts = 3
	maxListSize            = 100
)

// The datastore transaction is shared by all stores, so an order and its outbox envelope
// commit together.
type datastoreTransactionKey struct{}

type gcloudStore[T any] struct {
	logger mylog.Logger
	client *datastore.Client
	kind   string
}

func newGcloudStore[T any](c context.Context) (*gcloudStore[T], func(), error) {
	client, err := datastore.NewClient(c, os.Getenv("GOOGLE_CLOUD_PROJECT"))
	if err != nil {
		return nil, func() {}, fmt.Errorf("error creating datastore client: %s", err)
	}

	kind := reflect.TypeOf((*T)(nil)).Elem().Name()

	return &gcloudStore[T]{
		logger: mylog.New("store"),
		client: client,
		kind:   kind,
	}, func() { client.Close() }, nil
}

func transactionFrom(c context.Context) *datastore.Transaction {
	tx, _ := c.Value(datastoreTransactionKey{}).(*datastore.Transaction)
	return tx
}

func (s *gcloudStore[T]) key(uid string) *datastore.Key {
	return datastore.NameKey(s.kind, uid, nil)
}

func (s *gcloudStore[T]) RunInTransaction(c context.Context, f func(c context.Context) error) error {
	if transactionFrom(c) != nil {
		// join the surrounding transaction
		return f(c)
	}

	var err error
	for attempt := 1; attempt <= maxTransactionAttempts; attempt++ {
		err = s.runInTransaction(c, f)
		if !errors.Is(err, datastore.ErrConcurrentTransaction) {
			return err
		}
		s.logger.Log(c, s.kind, mylog.SeverityWarn, "Concurrent transaction on %s (attempt %d of %d)", s.kind, attempt, maxTransactionAttempts)
	}
	return err
}

func (s *gcloudStore[T]) runInTransaction(c context.Context, f func(c context.Context) error) error {
	tx, err := s.client.NewTransaction(c)
	if err != nil {
		return fmt.Errorf("error starting transaction on %s: %w", s.kind, err)
	}

	err = f(context.WithValue(c, datastoreTransactionKey{}, tx))
	if err != nil {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			s.logger.Log(c, s.kind, mylog.SeverityError, "Error rolling back transaction on %s: %s", s.kind, rollbackErr)
		}
		return err
	}

	_, err = tx.Commit()
	if err != nil {
		return fmt.Errorf("error committing transaction on %s: %w", s.kind, err)
	}
	return nil
}

func (s *gcloudStore[T]) Put(c context.Context, uid string, value T) error {
	var err error
	if tx := transactionFrom(c); tx != nil {
		_, err = tx.Put(s.key(uid), &value)
	} else {
		_, err = s.client.Put(c, s.key(uid), &value)
	}
	if err != nil {
		return fmt.Errorf("error storing %s %s: %s", s.kind, uid, err)
	}
	return nil
}

func (s *gcloudStore[T]) Get(c context.Context, uid string) (T, bool, error) {
	var value T
	var err error
	if tx := transactionFrom(c); tx != nil {
		err = tx.Get(s.key(uid), &value)
	} else {
		err = s.client.Get(c, s.key(uid), &value)
	}
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return value, false, nil
	}
	if err != nil {
		return value, false, fmt.Errorf("error fetching %s %s: %s", s.kind, uid, err)
	}
	return value, true, nil
}

func (s *gcloudStore[T]) List(c context.Context) ([]T, error) {
	return s.getAll(c, datastore.NewQuery(s.kind).Limit(maxListSize))
}

// Query needs a composite index per filter/order combination; see index.yaml.
func (s *gcloudStore[T]) Query(c context.Context, filters []Filter, orderByField string) ([]T, error) {
	q := datastore.NewQuery(s.kind)
	for _, f := range filters {
		q = q.FilterField(f.Field, f.Compare, f.Value)
	}
	if orderByField != "" {
		q = q.Order(orderByField)
	}
	return s.getAll(c, q)
}

func (s *gcloudStore[T]) getAll(c context.Context, q *datastore.Query) ([]T, error) {
	if tx := transactionFrom(c); tx != nil {
		q = q.Transaction(tx)
	}

	values := []T{}
	_, err := s.client.GetAll(c, q, &values)
	if err != nil {
		return nil, fmt.Errorf("error querying %s: %s", s.kind, err)
	}
	return values, nil
}
