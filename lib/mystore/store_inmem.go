package mystore

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

type inMemoryTransactionKey struct {
	store any
}

// InMemoryStore keeps copies of the stored values, so callers never share memory with the store.
type InMemoryStore[T any] struct {
	sync.Mutex
	Items map[string]T
}

func NewInMemoryStore[T any](c context.Context) (*InMemoryStore[T], func(), error) {
	return &InMemoryStore[T]{
		Items: make(map[string]T),
	}, func() {}, nil
}

func (s *InMemoryStore[T]) inTransaction(c context.Context) bool {
	return c.Value(inMemoryTransactionKey{store: s}) != nil
}

func (s *InMemoryStore[T]) RunInTransaction(c context.Context, f func(c context.Context) error) error {
	if s.inTransaction(c) {
		// join the surrounding transaction
		return f(c)
	}

	// Start transaction
	s.Lock()
	defer s.Unlock()

	snapshot := maps.Clone(s.Items)

	// Within this block everything is transactional
	err := f(context.WithValue(c, inMemoryTransactionKey{store: s}, true))
	if err != nil {
		// Rollback
		s.Items = snapshot
		return err
	}

	// Commit
	return nil
}

func (s *InMemoryStore[T]) Put(c context.Context, uid string, value T) error {
	if !s.inTransaction(c) {
		s.Lock()
		defer s.Unlock()
	}

	copied, err := deepCopy(value)
	if err != nil {
		return fmt.Errorf("error storing entity with uid %s: %s", uid, err)
	}
	s.Items[uid] = copied

	return nil
}

func (s *InMemoryStore[T]) Get(c context.Context, uid string) (T, bool, error) {
	if !s.inTransaction(c) {
		s.Lock()
		defer s.Unlock()
	}

	result, exists := s.Items[uid]
	if !exists {
		return result, false, nil
	}

	copied, err := deepCopy(result)
	if err != nil {
		return result, false, fmt.Errorf("error fetching entity with uid %s: %s", uid, err)
	}

	return copied, true, nil
}

func (s *InMemoryStore[T]) List(c context.Context) ([]T, error) {
	if !s.inTransaction(c) {
		s.Lock()
		defer s.Unlock()
	}

	return s.list(nil)
}

func (s *InMemoryStore[T]) Query(c context.Context, filters []Filter, orderByField string) ([]T, error) {
	if !s.inTransaction(c) {
		s.Lock()
		defer s.Unlock()
	}

	result, err := s.list(filters)
	if err != nil {
		return nil, err
	}

	if orderByField != "" {
		descending := strings.HasPrefix(orderByField, "-")
		field := strings.TrimPrefix(orderByField, "-")
		var sortErr error
		sort.SliceStable(result, func(i, j int) bool {
			cmp, err := compareValues(fieldOf(result[i], field), fieldOf(result[j], field))
			if err != nil {
				sortErr = err
				return false
			}
			if descending {
				return cmp > 0
			}
			return cmp < 0
		})
		if sortErr != nil {
			return nil, fmt.Errorf("error ordering on %s: %s", field, sortErr)
		}
	}

	return result, nil
}

func (s *InMemoryStore[T]) list(filters []Filter) ([]T, error) {
	result := []T{}
	uids := make([]string, 0, len(s.Items))
	for uid := range s.Items {
		uids = append(uids, uid)
	}
	slices.Sort(uids)
	for _, uid := range uids {
		item := s.Items[uid]
		matches, err := matchesAll(item, filters)
		if err != nil {
			return nil, err
		}
		if !matches {
			continue
		}
		copied, err := deepCopy(item)
		if err != nil {
			return nil, fmt.Errorf("error fetching entity with uid %s: %s", uid, err)
		}
		result = append(result, copied)
	}
	return result, nil
}

func deepCopy[T any](value T) (T, error) {
	var copied T
	asJSON, err := json.Marshal(value)
	if err != nil {
		return copied, err
	}
	err = json.Unmarshal(asJSON, &copied)
	if err != nil {
		return copied, err
	}
	return copied, nil
}

func matchesAll(item any, filters []Filter) (bool, error) {
	for _, f := range filters {
		field := fieldOf(item, f.Field)
		if !field.IsValid() {
			return false, fmt.Errorf("unknown field %s", f.Field)
		}
		cmp, err := compareValues(field, reflect.ValueOf(f.Value))
		if err != nil {
			return false, fmt.Errorf("error filtering on %s: %s", f.Field, err)
		}
		var ok bool
		switch f.Compare {
		case "=", "==":
			ok = cmp == 0
		case "!=":
			ok = cmp != 0
		case "<":
			ok = cmp < 0
		case "<=":
			ok = cmp <= 0
		case ">":
			ok = cmp > 0
		case ">=":
			ok = cmp >= 0
		default:
			return false, fmt.Errorf("unsupported operator %q", f.Compare)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func fieldOf(item any, name string) reflect.Value {
	v := reflect.ValueOf(item)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}
	}
	return v.FieldByName(name)
}

var timeType = reflect.TypeOf(time.Time{})

func compareValues(a, b reflect.Value) (int, error) {
	if !a.IsValid() || !b.IsValid() {
		return 0, fmt.Errorf("cannot compare missing values")
	}
	if a.Type() == timeType && b.Type() == timeType {
		return a.Interface().(time.Time).Compare(b.Interface().(time.Time)), nil
	}
	switch a.Kind() {
	case reflect.String:
		if b.Kind() != reflect.String {
			break
		}
		return strings.Compare(a.String(), b.String()), nil
	case reflect.Bool:
		if b.Kind() != reflect.Bool {
			break
		}
		if a.Bool() == b.Bool() {
			return 0, nil
		}
		if !a.Bool() {
			return -1, nil
		}
		return 1, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if !b.CanInt() {
			break
		}
		return compareOrdered(a.Int(), b.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if !b.CanUint() {
			break
		}
		return compareOrdered(a.Uint(), b.Uint()), nil
	case reflect.Float32, reflect.Float64:
		if !b.CanFloat() {
			break
		}
		return compareOrdered(a.Float(), b.Float()), nil
	}
	return 0, fmt.Errorf("cannot compare %s with %s", a.Type(), b.Type())
}

func compareOrdered[V int64 | uint64 | float64](a, b V) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
