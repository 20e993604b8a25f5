package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitgrid/habitgrid/heatmap"
	"github.com/habitgrid/habitgrid/models"
)

// fakeStore emulates the entry endpoints of the server, with switches to
// fail or stall upserts so reconciliation paths can be exercised.
type fakeStore struct {
	mu      sync.Mutex
	counts  map[string]int
	ids     map[string]uint
	nextID  uint
	puts    int
	failPut bool
	// when set, a PUT whose count matches stallCount blocks until
	// stallRelease is closed, before writing its value.
	stallCount   int
	stallRelease chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{counts: map[string]int{}, ids: map[string]uint{}, stallCount: -1}
}

func writeEnvelope(w http.ResponseWriter, status, code int, msg string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": code, "message": msg, "data": data})
}

func (s *fakeStore) entryFor(date string) models.HabitEntry {
	d, _ := heatmap.ParseDate(date)
	return models.HabitEntry{ID: s.ids[date], HabitID: 1, EntryDate: d, Count: s.counts[date]}
}

func (s *fakeStore) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/entries"):
			s.mu.Lock()
			items := make([]models.HabitEntry, 0, len(s.counts))
			for date := range s.counts {
				items = append(items, s.entryFor(date))
			}
			s.mu.Unlock()
			writeEnvelope(w, 200, 0, "success", map[string]interface{}{"items": items})

		case r.Method == http.MethodPut:
			parts := strings.Split(r.URL.Path, "/")
			date := parts[len(parts)-1]
			var body struct {
				Count int `json:"count"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)

			s.mu.Lock()
			s.puts++
			failPut := s.failPut
			stall := body.Count == s.stallCount
			release := s.stallRelease
			s.mu.Unlock()

			if failPut {
				writeEnvelope(w, 500, 50041, "failed to save entry", nil)
				return
			}
			if stall {
				<-release
			}

			s.mu.Lock()
			if _, ok := s.ids[date]; !ok {
				s.nextID++
				s.ids[date] = s.nextID
			}
			s.counts[date] = body.Count
			entry := s.entryFor(date)
			s.mu.Unlock()
			writeEnvelope(w, 200, 0, "success", map[string]interface{}{"entry": entry})

		default:
			writeEnvelope(w, 404, 40400, "api route not found", nil)
		}
	})
}

func (s *fakeStore) count(date string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[date]
}

func (s *fakeStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func testHabit(goal int) models.Habit {
	return models.Habit{ID: 1, UserID: 1, Name: "read", DailyGoal: goal, Color: "#FFB3BA", Active: true}
}

func TestRecordEntry_ClickCycle(t *testing.T) {
	store := newFakeStore()
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	api := New(srv.URL, "token")
	grid := NewGridState(api, testHabit(3))
	today := heatmap.DayStart(time.Now())

	// Clicking from 0 with goal 3 cycles 1, 2, 3, 0 — rapid clicks chain
	// off the latest optimistic value, not a stale snapshot.
	want := []int{1, 2, 3, 0}
	for i, expected := range want {
		got := grid.RecordEntry(context.Background(), today)
		assert.Equal(t, expected, got, "click %d", i+1)
		assert.Equal(t, expected, grid.Count(today))
	}

	grid.Wait()
	assert.Equal(t, 0, store.count(heatmap.FormatDate(today)))
	assert.Empty(t, grid.LastError())
}

func TestRecordEntry_RapidClicksConvergeStore(t *testing.T) {
	store := newFakeStore()
	store.stallCount = 1
	store.stallRelease = make(chan struct{})
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	api := New(srv.URL, "token")
	grid := NewGridState(api, testHabit(3))
	today := heatmap.DayStart(time.Now())

	// The first click's write stalls server-side while three more clicks
	// cycle the cell to 0. The stalled writer must carry the coalesced
	// final value in a single follow-up instead of racing four requests,
	// so the store never settles on a stale intermediate.
	for _, expected := range []int{1, 2, 3, 0} {
		assert.Equal(t, expected, grid.RecordEntry(context.Background(), today))
	}
	close(store.stallRelease)
	grid.Wait()

	key := heatmap.FormatDate(today)
	assert.Equal(t, 0, grid.Count(today))
	assert.Equal(t, 0, store.count(key), "store must converge on the latest local value")
	assert.Equal(t, 2, store.putCount(), "superseded clicks coalesce into one catch-up write")
}

func TestRecordEntry_PlaceholderIDUntilServerAssigns(t *testing.T) {
	store := newFakeStore()
	store.stallCount = 1
	store.stallRelease = make(chan struct{})
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	api := New(srv.URL, "token")
	grid := NewGridState(api, testHabit(3))
	today := heatmap.DayStart(time.Now())

	assert.Empty(t, grid.EntryID(today))

	grid.RecordEntry(context.Background(), today)
	placeholder := grid.EntryID(today)
	require.NotEmpty(t, placeholder, "a new cell carries a placeholder ID while its create is in flight")
	_, err := uuid.Parse(placeholder)
	require.NoError(t, err)

	close(store.stallRelease)
	grid.Wait()
	assert.Equal(t, "1", grid.EntryID(today), "server row ID supersedes the placeholder")
}

func TestRecordEntry_OptimisticBeforeResponse(t *testing.T) {
	store := newFakeStore()
	store.stallCount = 1
	store.stallRelease = make(chan struct{})
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	api := New(srv.URL, "token")
	grid := NewGridState(api, testHabit(5))
	today := heatmap.DayStart(time.Now())

	got := grid.RecordEntry(context.Background(), today)
	assert.Equal(t, 1, got)
	assert.Equal(t, 1, grid.Count(today), "local state must update before the request resolves")
	assert.True(t, grid.Pending(today))

	close(store.stallRelease)
	grid.Wait()
	assert.False(t, grid.Pending(today))
	assert.Equal(t, 1, grid.Count(today))
	assert.Equal(t, 1, store.count(heatmap.FormatDate(today)))
}

func TestRecordEntry_FailureRollsBackAndClearsError(t *testing.T) {
	store := newFakeStore()
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	today := heatmap.DayStart(time.Now())
	key := heatmap.FormatDate(today)
	store.counts[key] = 2
	store.ids[key] = 7
	store.nextID = 7

	api := New(srv.URL, "token")
	grid := NewGridState(api, testHabit(3), WithErrorTTL(60*time.Millisecond))
	require.NoError(t, grid.Load(context.Background()))
	require.Equal(t, 2, grid.Count(today))

	store.mu.Lock()
	store.failPut = true
	store.mu.Unlock()

	got := grid.RecordEntry(context.Background(), today)
	assert.Equal(t, 3, got, "optimistic increment applies immediately")

	grid.Wait()
	assert.Equal(t, 2, grid.Count(today), "failed write reverts to authoritative state")
	assert.NotEmpty(t, grid.LastError())

	// Transient error self-clears without user action.
	assert.Eventually(t, func() bool { return grid.LastError() == "" },
		time.Second, 10*time.Millisecond)
}

func TestRecordEntry_LateResponseDoesNotRegressNewerState(t *testing.T) {
	store := newFakeStore()
	store.stallCount = 1
	store.stallRelease = make(chan struct{})
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	api := New(srv.URL, "token")
	grid := NewGridState(api, testHabit(5))
	today := heatmap.DayStart(time.Now())

	// First click's request stalls server-side; second click supersedes it
	// while the write is still in flight.
	assert.Equal(t, 1, grid.RecordEntry(context.Background(), today))
	assert.Equal(t, 2, grid.RecordEntry(context.Background(), today))

	close(store.stallRelease)
	grid.Wait()

	assert.Equal(t, 2, grid.Count(today), "stale response must not overwrite the newer optimistic value")
	assert.Equal(t, 2, store.count(heatmap.FormatDate(today)))
}

func TestGridState_GridRendersLocalState(t *testing.T) {
	store := newFakeStore()
	srv := httptest.NewServer(store.handler())
	defer srv.Close()

	api := New(srv.URL, "token")
	grid := NewGridState(api, testHabit(3))
	today := heatmap.DayStart(time.Now())

	grid.RecordEntry(context.Background(), today)
	grid.RecordEntry(context.Background(), today)

	weeks, err := grid.Grid(heatmap.Rolling(7), today)
	require.NoError(t, err)

	var todayCell *heatmap.Cell
	for _, w := range weeks {
		for _, c := range w {
			if c != nil && c.Date == heatmap.FormatDate(today) {
				todayCell = c
			}
		}
	}
	require.NotNil(t, todayCell)
	assert.Equal(t, 2, todayCell.Count)
	assert.InDelta(t, 2.0/3.0, todayCell.Intensity, 1e-9)

	grid.Wait()
}
