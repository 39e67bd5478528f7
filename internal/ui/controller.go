// Package ui holds the widget's state machine. A Controller owns one
// Handles value and moves it between the input, loading and results
// states in response to user actions.
package ui

import (
	"context"
	"errors"
	"html/template"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/young1lin/agentsearch/internal/dispatcher"
	"github.com/young1lin/agentsearch/internal/models"
	"github.com/young1lin/agentsearch/pkg/logger"
)

// State is one of the mutually exclusive visual states
type State int

const (
	StateInput State = iota
	StateLoading
	StateResults
)

func (s State) String() string {
	switch s {
	case StateInput:
		return "input"
	case StateLoading:
		return "loading"
	case StateResults:
		return "results"
	default:
		return "unknown"
	}
}

// NoticeEmptyQuery is shown when an empty query is submitted
const NoticeEmptyQuery = "Please enter a query"

var (
	ErrEmptyQuery = errors.New("query is empty")
	ErrBusy       = errors.New("a request is already in flight")
)

// Handles are the widget's element states, created once and shared by
// pointer with the controller
type Handles struct {
	Active         State
	Query          string
	InputDisabled  bool
	SubmitDisabled bool
	Results        template.HTML
	Notice         string
}

// Dispatcher issues the webhook request for a query
type Dispatcher interface {
	Dispatch(ctx context.Context, query string) ([]models.DisplayItem, error)
}

// Renderer produces result and error markup
type Renderer interface {
	Items(items []models.DisplayItem) template.HTML
	Error(message string, code int, hint string) template.HTML
}

// Controller drives a Handles value. All access is serialized, so the
// handles behave as if owned by a single UI thread.
type Controller struct {
	mu          sync.Mutex
	h           *Handles
	dispatcher  Dispatcher
	renderer    Renderer
	generation  uint64
	inFlight    bool
	subscribers map[chan Handles]struct{}
}

// NewController creates a controller showing the input state
func NewController(h *Handles, d Dispatcher, r Renderer) *Controller {
	c := &Controller{
		h:           h,
		dispatcher:  d,
		renderer:    r,
		subscribers: make(map[chan Handles]struct{}),
	}
	c.h.Active = StateInput
	return c
}

// ShowState activates exactly one state
func (c *Controller) ShowState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.showLocked(s)
}

func (c *Controller) showLocked(s State) {
	c.h.Active = s
	c.publishLocked()
}

// Snapshot returns a copy of the current handles
func (c *Controller) Snapshot() Handles {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.h
}

// Submit validates query and starts a request. The returned channel is
// closed once the request settles.
func (c *Controller) Submit(ctx context.Context, query string) (<-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		c.h.Query = query
		c.h.Notice = NoticeEmptyQuery
		c.publishLocked()
		return nil, ErrEmptyQuery
	}
	if c.inFlight {
		return nil, ErrBusy
	}

	c.h.Query = trimmed
	return c.startLocked(ctx, trimmed), nil
}

// Retry re-issues the query currently held by the input
func (c *Controller) Retry(ctx context.Context) (<-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		return nil, ErrBusy
	}
	query := strings.TrimSpace(c.h.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	return c.startLocked(ctx, query), nil
}

// NewSearch clears the query and returns to the input state. A request
// still in flight is superseded and its result dropped.
func (c *Controller) NewSearch() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.inFlight = false
	c.h.Query = ""
	c.h.Notice = ""
	c.h.Results = ""
	c.setDisabledLocked(false)
	c.showLocked(StateInput)
}

// KeyDown handles a key press in the query input; Enter submits
func (c *Controller) KeyDown(ctx context.Context, key, query string) (<-chan struct{}, error) {
	if key != "Enter" {
		return nil, nil
	}
	return c.Submit(ctx, query)
}

func (c *Controller) startLocked(ctx context.Context, query string) <-chan struct{} {
	c.generation++
	gen := c.generation
	c.inFlight = true
	c.h.Notice = ""
	c.setDisabledLocked(true)
	c.showLocked(StateLoading)

	done := make(chan struct{})
	// the request outlives the caller (an HTTP handler returns right away)
	go c.run(context.WithoutCancel(ctx), gen, query, done)
	return done
}

func (c *Controller) run(ctx context.Context, gen uint64, query string, done chan struct{}) {
	defer close(done)

	var (
		items []models.DisplayItem
		err   error
	)
	defer func() {
		c.settle(ctx, gen, items, err)
	}()

	items, err = c.dispatcher.Dispatch(ctx, query)
}

// settle finalizes the UI for generation gen. Inputs are re-enabled
// whatever the outcome.
func (c *Controller) settle(ctx context.Context, gen uint64, items []models.DisplayItem, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := logger.FromContext(ctx).Named("ui")
	if gen != c.generation {
		log.Info("dropping superseded result", zap.Uint64("generation", gen), zap.Uint64("current", c.generation))
		return
	}

	c.inFlight = false
	c.setDisabledLocked(false)

	if err != nil {
		msg, code := dispatcher.UserMessage(err)
		log.Warn("query failed", zap.String("kind", dispatcher.Kind(err)), zap.Error(err))
		c.h.Results = c.renderer.Error(msg, code, dispatcher.Hint(err))
	} else {
		c.h.Results = c.renderer.Items(items)
	}
	c.showLocked(StateResults)
}

func (c *Controller) setDisabledLocked(disabled bool) {
	c.h.InputDisabled = disabled
	c.h.SubmitDisabled = disabled
}

// Subscribe returns a channel receiving a snapshot after every change.
// Slow subscribers miss intermediate snapshots but always get the latest.
func (c *Controller) Subscribe() (<-chan Handles, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Handles, 1)
	c.subscribers[ch] = struct{}{}
	ch <- *c.h

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, ch)
	}
}

func (c *Controller) publishLocked() {
	snapshot := *c.h
	for ch := range c.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}
