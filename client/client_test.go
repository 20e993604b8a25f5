package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitgrid/habitgrid/heatmap"
	"github.com/habitgrid/habitgrid/models"
)

func TestLoginAndListHabits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["password"] != "hunter22" {
				writeEnvelope(w, 401, 40106, "invalid username or password", nil)
				return
			}
			writeEnvelope(w, 200, 0, "success", map[string]interface{}{"token": "issued-token"})
		case "/api/v1/habits":
			assert.Equal(t, "Bearer issued-token", r.Header.Get("Authorization"))
			writeEnvelope(w, 200, 0, "success", map[string]interface{}{
				"items": []models.Habit{{ID: 1, Name: "read", DailyGoal: 2, Color: "#336699", Active: true}},
			})
		default:
			writeEnvelope(w, 404, 40400, "api route not found", nil)
		}
	}))
	defer srv.Close()

	_, err := Login(context.Background(), srv.URL, "ana", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)

	c, err := Login(context.Background(), srv.URL, "ana", "hunter22")
	require.NoError(t, err)

	habits, err := c.ListActiveHabits(context.Background())
	require.NoError(t, err)
	require.Len(t, habits, 1)
	assert.Equal(t, "read", habits[0].Name)
}

func TestUpsertAndIncrementEntry(t *testing.T) {
	date := heatmap.DayStart(time.Date(2024, time.March, 9, 0, 0, 0, 0, time.Local))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut:
			assert.Equal(t, "/api/v1/habits/4/entries/2024-03-09", r.URL.Path)
			writeEnvelope(w, 200, 0, "success", map[string]interface{}{
				"entry": models.HabitEntry{ID: 11, HabitID: 4, EntryDate: date, Count: 3},
			})
		case r.Method == http.MethodPost:
			assert.Equal(t, "/api/v1/habits/4/entries/2024-03-09/increment", r.URL.Path)
			var body map[string]int
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, 2, body["amount"])
			writeEnvelope(w, 200, 0, "success", map[string]interface{}{
				"entry": models.HabitEntry{ID: 11, HabitID: 4, EntryDate: date, Count: 5},
			})
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "token")

	entry, err := c.UpsertEntry(context.Background(), 4, date, 3)
	require.NoError(t, err)
	assert.Equal(t, uint(11), entry.ID)
	assert.Equal(t, 3, entry.Count)

	entry, err = c.IncrementEntry(context.Background(), 4, date, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, entry.Count)
}

func TestDoSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 400, 40023, "daily goal must be a positive integer", nil)
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	_, err := c.CreateHabit(context.Background(), "read", "", 0, "#336699")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily goal must be a positive integer")
}

func TestDoUnauthorizedWithoutEnvelope(t *testing.T) {
	// A proxy or gateway can reject with a plain-text 401 that never
	// passes through the API's JSON envelope.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "401 Authorization Required", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "expired-token")
	_, err := c.ListActiveHabits(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestDeleteHabit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/habits/9", r.URL.Path)
		writeEnvelope(w, 200, 0, "success", map[string]interface{}{"habit": models.Habit{ID: 9}})
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	require.NoError(t, c.DeleteHabit(context.Background(), 9))
}
