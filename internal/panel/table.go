package panel

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	StatusLoading  = "Loading"
	StatusNotSet   = "Not set"
	StatusAssigned = "Assigned"
)

// Action is the label of a row's action cell. Generate and Remove are
// clickable; Created is display only.
type Action string

const (
	ActionNone     Action = ""
	ActionGenerate Action = "Generate key"
	ActionRemove   Action = "Remove"
	ActionCreated  Action = "Created"
)

// Bindable reports whether the action can be dispatched.
func (a Action) Bindable() bool {
	return a == ActionGenerate || a == ActionRemove
}

var ErrUnknownSlot = errors.New("key record does not map to a panel slot")

// LoaderStatus is one loader entry of a status reply. Enabled is a pointer
// because an absent flag counts as enabled.
type LoaderStatus struct {
	Name     string     `json:"name"`
	Enabled  *bool      `json:"enabled,omitempty"`
	LastSeen *time.Time `json:"lastseen,omitempty"`
}

// IsEnabled reports whether the loader is not explicitly disabled.
func (l LoaderStatus) IsEnabled() bool {
	return l.Enabled == nil || *l.Enabled
}

// StatusReply is the body of GET /keystatus.
type StatusReply struct {
	Loaders []LoaderStatus `json:"loaders"`
}

// KeyRecord is the body returned by POST /newkey.
type KeyRecord struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
	Key    string `json:"key"`
}

// Credential is the literal secret shown to the user.
func (k KeyRecord) Credential() string {
	return k.Prefix + k.Key
}

// Row is one rendered slot: label, status, action and recency cells.
type Row struct {
	Slot    SlotID
	Label   string
	Status  string
	Action  Action
	Recency string
}

// Table is the full panel state. It is a value; every render produces a new one.
type Table struct {
	Rows [SlotCount]Row
}

// LoadingTable is the placeholder shown before the first status reply.
func LoadingTable() Table {
	var t Table
	for i := range t.Rows {
		t.Rows[i] = Row{
			Slot:    Slot(i + 1),
			Label:   strconv.Itoa(i + 1),
			Status:  StatusLoading,
			Action:  ActionNone,
			Recency: StatusLoading,
		}
	}
	return t
}

// Row returns the row for slot.
func (t *Table) Row(slot SlotID) (*Row, bool) {
	n, ok := slot.Index()
	if !ok {
		return nil, false
	}
	return &t.Rows[n-1], true
}

// BuildTable renders a status reply. For each slot the first loader in reply
// order that is not disabled and whose name suffix equals the slot index
// decides the row; later duplicates are ignored.
func BuildTable(reply StatusReply, now time.Time) Table {
	var t Table
	for i := 1; i <= SlotCount; i++ {
		row := Row{
			Slot:    Slot(i),
			Label:   strconv.Itoa(i),
			Status:  StatusNotSet,
			Action:  ActionGenerate,
			Recency: RecencyUnknown,
		}
		for _, l := range reply.Loaders {
			if !l.IsEnabled() {
				continue
			}
			if n, ok := loaderSuffix(l.Name); !ok || n != i {
				continue
			}
			row.Status = StatusAssigned
			row.Action = ActionRemove
			if l.LastSeen != nil {
				row.Recency = Recency(*l.LastSeen, now)
			}
			break
		}
		t.Rows[i-1] = row
	}
	return t
}

// ShowInitialKey reveals a freshly created credential in its slot's row and
// marks the action Created. The secret lives only in the returned table.
func ShowInitialKey(t Table, rec KeyRecord) (Table, error) {
	slot, ok := LoaderSlot(rec.Name)
	if !ok {
		return t, fmt.Errorf("%w: %q", ErrUnknownSlot, rec.Name)
	}
	row, ok := t.Row(slot)
	if !ok {
		return t, fmt.Errorf("%w: %q", ErrUnknownSlot, rec.Name)
	}
	row.Status = rec.Credential()
	row.Action = ActionCreated
	return t, nil
}
