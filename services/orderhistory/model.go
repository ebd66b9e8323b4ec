package orderhistory

import "time"

type Entry struct {
	EventType     string
	Status        string `datastore:",noindex"`
	PaymentStatus string `datastore:",noindex"`
	AmountInCents int64  `datastore:",noindex"`
	RefundID      string `datastore:",noindex"`
	DisputeID     string `datastore:",noindex"`
	Description   string `datastore:",noindex"`
	CauseID       string
	CauseType     string
	Timestamp     time.Time
}

// Timeline is the append-only history of one order, oldest entry first.
type Timeline struct {
	OrderUID     string
	Entries      []Entry
	LastModified time.Time
}

// append adds the entry unless the same event was delivered before.
func (t *Timeline) append(entry Entry) bool {
	for _, e := range t.Entries {
		if e.EventType == entry.EventType && e.CauseID == entry.CauseID {
			return false
		}
	}
	t.Entries = append(t.Entries, entry)
	return true
}
