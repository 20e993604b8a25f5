package client

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/habitgrid/habitgrid/heatmap"
	"github.com/habitgrid/habitgrid/models"
)

const (
	defaultErrorTTL    = 3 * time.Second
	defaultRefetchDays = 366
)

// cellState tracks one (habit, date) cell through the optimistic update
// machine: a clean cell has pending=false and its authoritative count; a
// pending cell carries the latest optimistic count plus the sequence
// number of the click that produced it. TempID is a client-generated
// placeholder identifier, replaced by the server row ID on success.
type cellState struct {
	tempID  string
	entryID uint
	count   int
	pending bool
	writing bool
	seq     uint64
}

// GridState holds the local, optimistically-updated entry state for one
// habit. Clicks mutate it synchronously; the authoritative write happens
// in the background and is reconciled by sequence number, so a late
// response can never overwrite a newer optimistic value.
type GridState struct {
	api   *Client
	habit models.Habit

	mu    sync.Mutex
	cells map[string]*cellState

	errMsg string
	errSeq uint64
	errTTL time.Duration

	refetchDays int
	inflight    sync.WaitGroup
}

// GridOption customizes a GridState.
type GridOption func(*GridState)

// WithErrorTTL overrides how long a transient error message stays visible.
func WithErrorTTL(d time.Duration) GridOption {
	return func(g *GridState) { g.errTTL = d }
}

// WithRefetchDays overrides the window re-fetched after a failed mutation.
func WithRefetchDays(days int) GridOption {
	return func(g *GridState) { g.refetchDays = days }
}

// NewGridState creates the local grid for one habit. Call Load to pull
// the authoritative entries before first render.
func NewGridState(api *Client, habit models.Habit, opts ...GridOption) *GridState {
	g := &GridState{
		api:         api,
		habit:       habit,
		cells:       map[string]*cellState{},
		errTTL:      defaultErrorTTL,
		refetchDays: defaultRefetchDays,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Habit returns the habit this grid tracks.
func (g *GridState) Habit() models.Habit { return g.habit }

// Load replaces local state with the authoritative entries.
func (g *GridState) Load(ctx context.Context) error {
	entries, err := g.api.GetEntries(ctx, g.habit.ID, g.refetchDays)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.applyAuthoritativeLocked(entries)
	g.mu.Unlock()
	return nil
}

// RecordEntry applies one interactive click to the given day: a count at
// or above the daily goal resets to 0, anything below increments by 1.
// The new value is applied to the local grid before this returns; the
// authoritative write proceeds in the background. Repeated clicks always
// chain off the latest optimistic value.
func (g *GridState) RecordEntry(ctx context.Context, date time.Time) int {
	key := heatmap.FormatDate(date)

	g.mu.Lock()
	cell, ok := g.cells[key]
	if !ok {
		cell = &cellState{}
		g.cells[key] = cell
	}
	next := cell.count + 1
	if cell.count >= g.habit.DailyGoal {
		next = 0
	}
	cell.seq++
	seq := cell.seq
	cell.count = next
	cell.pending = true
	if cell.entryID == 0 && cell.tempID == "" {
		cell.tempID = uuid.NewString()
	}
	// At most one writer per cell: clicks landing while a write is in
	// flight only advance the optimistic state; the active writer carries
	// their value to the store in a single follow-up request.
	launch := !cell.writing
	if launch {
		cell.writing = true
		g.inflight.Add(1)
	}
	g.mu.Unlock()

	if launch {
		go g.reconcile(ctx, heatmap.DayStart(date), key, next, seq)
	}

	return next
}

// reconcile is the cell's single writer. It settles the optimistic value
// against the store; when newer clicks supersede the value mid-flight it
// issues one more write carrying their coalesced result, so the store
// always converges on the latest local state instead of racing per-click
// requests. On failure the optimistic value is discarded in favor of
// re-fetched truth and a transient error surfaces.
func (g *GridState) reconcile(ctx context.Context, date time.Time, key string, count int, seq uint64) {
	defer g.inflight.Done()

	for {
		entry, err := g.api.UpsertEntry(ctx, g.habit.ID, date, count)
		if err != nil {
			break
		}
		g.mu.Lock()
		cell := g.cells[key]
		if cell == nil {
			g.mu.Unlock()
			return
		}
		cell.entryID = entry.ID
		cell.tempID = ""
		if cell.seq == seq {
			cell.count = entry.Count
			cell.pending = false
			cell.writing = false
			g.mu.Unlock()
			return
		}
		seq = cell.seq
		count = cell.count
		g.mu.Unlock()
	}

	// Roll back: discard the optimistic value and recover authoritative
	// state for the whole habit.
	var entries []models.HabitEntry
	fetchErr := backoff.Retry(func() error {
		var ferr error
		entries, ferr = g.api.GetEntries(ctx, g.habit.ID, g.refetchDays)
		return ferr
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx))

	g.mu.Lock()
	defer g.mu.Unlock()

	cell := g.cells[key]
	if cell != nil {
		cell.pending = false
		cell.writing = false
		cell.tempID = ""
	}
	if fetchErr == nil {
		g.applyAuthoritativeLocked(entries)
	}
	g.setErrorLocked("failed to save entry, reverted to server state")
}

// applyAuthoritativeLocked replaces non-pending cells with server truth.
// Cells with an in-flight newer optimistic value are left alone; their
// own reconcile settles them.
func (g *GridState) applyAuthoritativeLocked(entries []models.HabitEntry) {
	server := make(map[string]models.HabitEntry, len(entries))
	for _, e := range entries {
		server[heatmap.FormatDate(e.EntryDate.Local())] = e
	}

	for key, cell := range g.cells {
		if cell.pending {
			continue
		}
		if e, ok := server[key]; ok {
			cell.entryID = e.ID
			cell.tempID = ""
			cell.count = e.Count
		} else {
			delete(g.cells, key)
		}
	}
	for key, e := range server {
		if _, ok := g.cells[key]; !ok {
			g.cells[key] = &cellState{entryID: e.ID, count: e.Count}
		}
	}
}

func (g *GridState) setErrorLocked(msg string) {
	g.errMsg = msg
	g.errSeq++
	seq := g.errSeq
	time.AfterFunc(g.errTTL, func() {
		g.mu.Lock()
		if g.errSeq == seq {
			g.errMsg = ""
		}
		g.mu.Unlock()
	})
}

// Count returns the current (optimistic included) count for a day.
func (g *GridState) Count(date time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cell, ok := g.cells[heatmap.FormatDate(date)]; ok {
		return cell.count
	}
	return 0
}

// Intensity returns the normalized progress ratio for a day.
func (g *GridState) Intensity(date time.Time) float64 {
	return heatmap.Intensity(g.Count(date), g.habit.DailyGoal)
}

// EntryID returns the identifier of the day's entry: the server row ID
// once a write has settled, or the client-generated placeholder while
// the creating write is still in flight. Empty for a blank day.
func (g *GridState) EntryID(date time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	cell, ok := g.cells[heatmap.FormatDate(date)]
	if !ok {
		return ""
	}
	if cell.entryID != 0 {
		return strconv.FormatUint(uint64(cell.entryID), 10)
	}
	return cell.tempID
}

// Pending reports whether a mutation for the day is still in flight.
func (g *GridState) Pending(date time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	cell, ok := g.cells[heatmap.FormatDate(date)]
	return ok && cell.pending
}

// LastError returns the current transient error message, empty once it
// has self-cleared.
func (g *GridState) LastError() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.errMsg
}

// Grid renders the current local state through the date-grid builder.
func (g *GridState) Grid(w heatmap.Window, today time.Time) ([]heatmap.Week, error) {
	g.mu.Lock()
	entries := make([]models.HabitEntry, 0, len(g.cells))
	for key, cell := range g.cells {
		date, err := heatmap.ParseDate(key)
		if err != nil {
			continue
		}
		entries = append(entries, models.HabitEntry{ID: cell.entryID, HabitID: g.habit.ID, EntryDate: date, Count: cell.count})
	}
	g.mu.Unlock()

	return heatmap.BuildGrid(entries, g.habit.DailyGoal, w, today)
}

// Wait blocks until all in-flight mutations have settled.
func (g *GridState) Wait() {
	g.inflight.Wait()
}
