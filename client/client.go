// Package client is a typed Go client for the habitgrid API. It carries
// the optimistic-update reconciliation used by interactive heatmaps: see
// GridState for the per-cell state machine.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/habitgrid/habitgrid/heatmap"
	"github.com/habitgrid/habitgrid/models"
)

// ErrUnauthorized is returned when the server rejects the session token.
var ErrUnauthorized = errors.New("unauthorized")

// Client talks to a habitgrid server on behalf of one signed-in user.
type Client struct {
	http *resty.Client
	log  *zap.SugaredLogger
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout (default 10s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithLogger attaches a logger for request failures.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = log }
}

// New constructs a Client for the given base URL and bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second).
			SetAuthToken(token).
			SetHeader("Content-Type", "application/json"),
		log: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login authenticates and returns a Client bound to the issued token.
func Login(ctx context.Context, baseURL, username, password string, opts ...Option) (*Client, error) {
	anon := New(baseURL, "", opts...)
	var data struct {
		Token string `json:"token"`
	}
	err := anon.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]string{"username": username, "password": password}).
			Post("/api/v1/auth/login")
	}, &data)
	if err != nil {
		return nil, err
	}
	return New(baseURL, data.Token, opts...), nil
}

// ListActiveHabits returns the user's active habits.
func (c *Client) ListActiveHabits(ctx context.Context) ([]models.Habit, error) {
	var data struct {
		Items []models.Habit `json:"items"`
	}
	err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/api/v1/habits")
	}, &data)
	return data.Items, err
}

// GetEntries returns a habit's entries for the last sinceDays days,
// ascending by date.
func (c *Client) GetEntries(ctx context.Context, habitID uint, sinceDays int) ([]models.HabitEntry, error) {
	var data struct {
		Items []models.HabitEntry `json:"items"`
	}
	err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("since_days", fmt.Sprint(sinceDays)).
			Get(fmt.Sprintf("/api/v1/habits/%d/entries", habitID))
	}, &data)
	return data.Items, err
}

// GetEntriesRange returns a habit's entries between from and to inclusive.
func (c *Client) GetEntriesRange(ctx context.Context, habitID uint, from, to time.Time) ([]models.HabitEntry, error) {
	var data struct {
		Items []models.HabitEntry `json:"items"`
	}
	err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(map[string]string{
			"from": heatmap.FormatDate(from),
			"to":   heatmap.FormatDate(to),
		}).Get(fmt.Sprintf("/api/v1/habits/%d/entries", habitID))
	}, &data)
	return data.Items, err
}

// UpsertEntry overwrites the count for one day, creating the entry if absent.
func (c *Client) UpsertEntry(ctx context.Context, habitID uint, date time.Time, count int) (*models.HabitEntry, error) {
	var data struct {
		Entry *models.HabitEntry `json:"entry"`
	}
	err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]int{"count": count}).
			Put(fmt.Sprintf("/api/v1/habits/%d/entries/%s", habitID, heatmap.FormatDate(date)))
	}, &data)
	return data.Entry, err
}

// IncrementEntry adds amount to one day's count, creating the entry if absent.
func (c *Client) IncrementEntry(ctx context.Context, habitID uint, date time.Time, amount int) (*models.HabitEntry, error) {
	var data struct {
		Entry *models.HabitEntry `json:"entry"`
	}
	err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]int{"amount": amount}).
			Post(fmt.Sprintf("/api/v1/habits/%d/entries/%s/increment", habitID, heatmap.FormatDate(date)))
	}, &data)
	return data.Entry, err
}

// CreateHabit creates a habit and returns the stored row.
func (c *Client) CreateHabit(ctx context.Context, name, description string, dailyGoal int, color string) (*models.Habit, error) {
	var data struct {
		Habit *models.Habit `json:"habit"`
	}
	err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]interface{}{
			"name":        name,
			"description": description,
			"daily_goal":  dailyGoal,
			"color":       color,
		}).Post("/api/v1/habits")
	}, &data)
	return data.Habit, err
}

// UpdateHabit applies the given partial fields to a habit.
func (c *Client) UpdateHabit(ctx context.Context, habitID uint, fields map[string]interface{}) (*models.Habit, error) {
	var data struct {
		Habit *models.Habit `json:"habit"`
	}
	err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(fields).Patch(fmt.Sprintf("/api/v1/habits/%d", habitID))
	}, &data)
	return data.Habit, err
}

// ArchiveHabit marks a habit inactive.
func (c *Client) ArchiveHabit(ctx context.Context, habitID uint) (*models.Habit, error) {
	var data struct {
		Habit *models.Habit `json:"habit"`
	}
	err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Post(fmt.Sprintf("/api/v1/habits/%d/archive", habitID))
	}, &data)
	return data.Habit, err
}

// DeleteHabit hard-deletes a habit and its entries.
func (c *Client) DeleteHabit(ctx context.Context, habitID uint) error {
	return c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Delete(fmt.Sprintf("/api/v1/habits/%d", habitID))
	}, nil)
}

// envelope mirrors the server's uniform JSON response shape.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, send func(*resty.Request) (*resty.Response, error), out interface{}) error {
	resp, err := send(c.http.R().SetContext(ctx))
	if err != nil {
		c.log.Debugw("request failed", "err", err)
		return err
	}

	// Intermediaries can answer 401 with a non-JSON body; classify by
	// status before trusting the payload shape.
	if resp.StatusCode() == 401 {
		return ErrUnauthorized
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("malformed response (status %d): %w", resp.StatusCode(), err)
	}
	if resp.IsError() || env.Code != 0 {
		return fmt.Errorf("api error %d: %s", env.Code, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
