// Package panel implements the three-slot key panel: it loads slot status
// from the key service, renders it into a fixed table, and runs the
// generate and remove actions bound to each row.
package panel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var ErrNoBinding = errors.New("no action bound to slot")

// Binding is the action a slot's row currently dispatches.
type Binding struct {
	Slot   SlotID
	Action Action
}

// ErrKeyNotShown reports a key the service created but the panel could not
// place in a row. The secret is lost and the slot must be generated again.
var ErrKeyNotShown = errors.New("key was created but cannot be displayed, generate it again")

// Controller owns the panel state and its per-slot bindings. Bindings are
// rebuilt from each rendered table and held by a dispatch while its action
// runs, so an action never runs twice concurrently.
type Controller struct {
	client Client
	now    func() time.Time

	mu       sync.Mutex
	table    Table
	bindings map[SlotID]Binding
	// epoch advances whenever the bindings are replaced.
	epoch uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the clock used for recency labels.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(client Client, opts ...Option) *Controller {
	c := &Controller{
		client:   client,
		now:      time.Now,
		table:    LoadingTable(),
		bindings: map[SlotID]Binding{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Load drops every binding, fetches the key status and renders it.
func (c *Controller) Load(ctx context.Context) (Table, error) {
	c.mu.Lock()
	c.bindings = map[SlotID]Binding{}
	c.epoch++
	c.mu.Unlock()

	reply, err := c.client.KeyStatus(ctx)
	if err != nil {
		return c.Table(), fmt.Errorf("load key status: %w", err)
	}
	return c.render(BuildTable(reply, c.now())), nil
}

// Generate requests a new key for slot and reveals it in the table.
func (c *Controller) Generate(ctx context.Context, slot SlotID) (Table, error) {
	rec, err := c.client.NewKey(ctx, slot)
	if err != nil {
		return c.Table(), fmt.Errorf("generate key for %s: %w", slot, err)
	}

	c.mu.Lock()
	t, err := ShowInitialKey(c.table, rec)
	c.mu.Unlock()
	if err != nil {
		return c.Table(), fmt.Errorf("%w (%s): %w", ErrKeyNotShown, slot, err)
	}
	return c.render(t), nil
}

// Remove revokes the key in slot and reloads the panel.
func (c *Controller) Remove(ctx context.Context, slot SlotID) (Table, error) {
	if err := c.client.DelKey(ctx, slot); err != nil {
		return c.Table(), fmt.Errorf("remove key for %s: %w", slot, err)
	}
	return c.Load(ctx)
}

// Dispatch runs the action currently bound to slot. The binding is taken
// for the duration of the action; a concurrent dispatch for the same slot
// returns ErrNoBinding. When the action fails and nothing was rendered in
// the meantime the binding is put back, so the row can be retried.
func (c *Controller) Dispatch(ctx context.Context, slot SlotID) (Table, error) {
	c.mu.Lock()
	b, ok := c.bindings[slot]
	delete(c.bindings, slot)
	epoch := c.epoch
	c.mu.Unlock()

	if !ok {
		return c.Table(), fmt.Errorf("%w: %s", ErrNoBinding, slot)
	}

	var (
		t   Table
		err error
	)
	switch b.Action {
	case ActionGenerate:
		t, err = c.Generate(ctx, slot)
	case ActionRemove:
		t, err = c.Remove(ctx, slot)
	default:
		return c.Table(), fmt.Errorf("%w: %s", ErrNoBinding, slot)
	}
	if err != nil {
		c.mu.Lock()
		if c.epoch == epoch {
			c.bindings[slot] = b
		}
		c.mu.Unlock()
	}
	return t, err
}

// Binding returns the action bound to slot, if any.
func (c *Controller) Binding(slot SlotID) (Binding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bindings[slot]
	return b, ok
}

// Bindings returns the current bindings ordered by slot.
func (c *Controller) Bindings() []Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Binding, 0, len(c.bindings))
	for _, b := range c.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Table returns the last rendered table.
func (c *Controller) Table() Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table
}

func (c *Controller) render(t Table) Table {
	bindings := make(map[SlotID]Binding, SlotCount)
	for _, row := range t.Rows {
		if row.Action.Bindable() {
			bindings[row.Slot] = Binding{Slot: row.Slot, Action: row.Action}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = t
	c.bindings = bindings
	c.epoch++
	return t
}
