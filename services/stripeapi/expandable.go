package stripeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Expandable is a reference that the processor renders either as a bare id or, when
// expanded, as the full object.
type Expandable[T any] struct {
	ID     string
	Object *T
}

func (e *Expandable[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = Expandable[T]{}
		return nil
	}

	if data[0] == '"' {
		id := ""
		err := json.Unmarshal(data, &id)
		if err != nil {
			return fmt.Errorf("error decoding reference id: %w", err)
		}
		*e = Expandable[T]{ID: id}
		return nil
	}

	ref := struct {
		ID string `json:"id"`
	}{}
	err := json.Unmarshal(data, &ref)
	if err != nil {
		return fmt.Errorf("error decoding expanded reference: %w", err)
	}
	object := new(T)
	err = json.Unmarshal(data, object)
	if err != nil {
		return fmt.Errorf("error decoding expanded %s: %w", ref.ID, err)
	}
	*e = Expandable[T]{ID: ref.ID, Object: object}
	return nil
}

func (e Expandable[T]) MarshalJSON() ([]byte, error) {
	if e.Object != nil {
		return json.Marshal(e.Object)
	}
	if e.ID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(e.ID)
}

// ExpandableID keeps only the id of a reference, expanded or not.
type ExpandableID string

func (e *ExpandableID) UnmarshalJSON(data []byte) error {
	ref := Expandable[struct{}]{}
	err := ref.UnmarshalJSON(data)
	if err != nil {
		return err
	}
	*e = ExpandableID(ref.ID)
	return nil
}

func (e ExpandableID) String() string {
	return string(e)
}
