package ui_test

import (
	"context"
	"fmt"
	"html/template"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/young1lin/agentsearch/internal/dispatcher"
	"github.com/young1lin/agentsearch/internal/models"
	"github.com/young1lin/agentsearch/internal/ui"
)

// fakeDispatcher blocks each call until a reply is sent on its channel
type fakeDispatcher struct {
	calls   chan string
	replies chan reply
}

type reply struct {
	items []models.DisplayItem
	err   error
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{calls: make(chan string, 8), replies: make(chan reply, 8)}
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, query string) ([]models.DisplayItem, error) {
	f.calls <- query
	r := <-f.replies
	return r.items, r.err
}

type fakeRenderer struct{}

func (fakeRenderer) Items(items []models.DisplayItem) template.HTML {
	return template.HTML(fmt.Sprintf("items:%d", len(items)))
}

func (fakeRenderer) Error(message string, code int, hint string) template.HTML {
	return template.HTML(fmt.Sprintf("error:%d:%s|%s", code, message, hint))
}

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("request did not settle")
	}
}

func newController() (*ui.Controller, *ui.Handles, *fakeDispatcher) {
	d := newFakeDispatcher()
	h := &ui.Handles{}
	return ui.NewController(h, d, fakeRenderer{}), h, d
}

func TestController_SubmitSuccess(t *testing.T) {
	t.Parallel()

	c, h, d := newController()
	assert.Equal(t, ui.StateInput, c.Snapshot().Active)

	done, err := c.Submit(context.Background(), "  cats  ")
	require.NoError(t, err)
	assert.Equal(t, "cats", <-d.calls)

	loading := c.Snapshot()
	assert.Equal(t, ui.StateLoading, loading.Active)
	assert.True(t, loading.InputDisabled)
	assert.True(t, loading.SubmitDisabled)

	d.replies <- reply{items: []models.DisplayItem{{Title: "A"}, {Title: "B"}}}
	wait(t, done)

	settled := c.Snapshot()
	assert.Equal(t, ui.StateResults, settled.Active)
	assert.False(t, settled.InputDisabled)
	assert.False(t, settled.SubmitDisabled)
	assert.Equal(t, template.HTML("items:2"), settled.Results)
	assert.Equal(t, "cats", settled.Query)
	assert.Equal(t, settled, *h)
}

func TestController_SubmitError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want template.HTML
	}{
		{"timeout", dispatcher.ErrTimeout, template.HTML("error:0:" + dispatcher.MsgTimeout + "|" + dispatcher.HintTimeout)},
		{"404", &dispatcher.HTTPStatusError{Code: 404}, template.HTML("error:404:" + dispatcher.MsgUnavailable + "|" + dispatcher.HintDefault)},
		{"500", &dispatcher.HTTPStatusError{Code: 500}, template.HTML("error:500:" + dispatcher.MsgInternalError + "|" + dispatcher.HintDefault)},
		{"network", &dispatcher.NetworkError{Err: fmt.Errorf("refused")}, template.HTML("error:0:" + dispatcher.MsgNetwork + "|" + dispatcher.HintDefault)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, _, d := newController()
			done, err := c.Submit(context.Background(), "q")
			require.NoError(t, err)
			<-d.calls
			d.replies <- reply{err: tt.err}
			wait(t, done)

			s := c.Snapshot()
			assert.Equal(t, ui.StateResults, s.Active)
			assert.False(t, s.InputDisabled, "inputs re-enabled after failure")
			assert.Equal(t, tt.want, s.Results)
		})
	}
}

func TestController_EmptyQuery(t *testing.T) {
	t.Parallel()

	for _, q := range []string{"", "   ", "\t\n"} {
		c, _, d := newController()

		done, err := c.Submit(context.Background(), q)
		assert.ErrorIs(t, err, ui.ErrEmptyQuery)
		assert.Nil(t, done)

		s := c.Snapshot()
		assert.Equal(t, ui.StateInput, s.Active, "no transition")
		assert.Equal(t, ui.NoticeEmptyQuery, s.Notice)
		assert.False(t, s.InputDisabled)
		assert.Len(t, d.calls, 0)
	}
}

func TestController_NoticeClearedOnSubmit(t *testing.T) {
	t.Parallel()

	c, _, d := newController()
	_, _ = c.Submit(context.Background(), " ")
	require.Equal(t, ui.NoticeEmptyQuery, c.Snapshot().Notice)

	done, err := c.Submit(context.Background(), "ok")
	require.NoError(t, err)
	assert.Empty(t, c.Snapshot().Notice)
	<-d.calls
	d.replies <- reply{}
	wait(t, done)
}

func TestController_BusyWhileInFlight(t *testing.T) {
	t.Parallel()

	c, _, d := newController()
	done, err := c.Submit(context.Background(), "first")
	require.NoError(t, err)
	<-d.calls

	_, err = c.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, ui.ErrBusy)
	_, err = c.Retry(context.Background())
	assert.ErrorIs(t, err, ui.ErrBusy)

	d.replies <- reply{}
	wait(t, done)
}

func TestController_Retry(t *testing.T) {
	t.Parallel()

	c, _, d := newController()
	done, err := c.Submit(context.Background(), "dogs")
	require.NoError(t, err)
	<-d.calls
	d.replies <- reply{err: dispatcher.ErrTimeout}
	wait(t, done)

	done, err = c.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dogs", <-d.calls, "retry re-issues the same query")
	assert.Equal(t, ui.StateLoading, c.Snapshot().Active)

	d.replies <- reply{items: []models.DisplayItem{{Title: "x"}}}
	wait(t, done)
	assert.Equal(t, template.HTML("items:1"), c.Snapshot().Results)
}

func TestController_RetryWithoutQuery(t *testing.T) {
	t.Parallel()

	c, _, _ := newController()
	_, err := c.Retry(context.Background())
	assert.ErrorIs(t, err, ui.ErrEmptyQuery)
}

func TestController_NewSearch(t *testing.T) {
	t.Parallel()

	c, _, d := newController()
	done, _ := c.Submit(context.Background(), "q")
	<-d.calls
	d.replies <- reply{}
	wait(t, done)

	c.NewSearch()

	s := c.Snapshot()
	assert.Equal(t, ui.StateInput, s.Active)
	assert.Empty(t, s.Query)
	assert.Empty(t, s.Results)
	assert.False(t, s.InputDisabled)
}

func TestController_NewSearchSupersedesInFlight(t *testing.T) {
	t.Parallel()

	c, _, d := newController()
	stale, err := c.Submit(context.Background(), "old")
	require.NoError(t, err)
	<-d.calls

	c.NewSearch()

	fresh, err := c.Submit(context.Background(), "new")
	require.NoError(t, err)
	<-d.calls

	// the stale reply arrives first and must not touch the UI
	d.replies <- reply{items: []models.DisplayItem{{Title: "stale"}, {Title: "stale"}, {Title: "stale"}}}
	wait(t, stale)
	s := c.Snapshot()
	assert.Equal(t, ui.StateLoading, s.Active)
	assert.True(t, s.InputDisabled)

	d.replies <- reply{items: []models.DisplayItem{{Title: "fresh"}}}
	wait(t, fresh)
	assert.Equal(t, template.HTML("items:1"), c.Snapshot().Results)
}

func TestController_KeyDown(t *testing.T) {
	t.Parallel()

	c, _, d := newController()

	done, err := c.KeyDown(context.Background(), "a", "query")
	assert.NoError(t, err)
	assert.Nil(t, done)
	assert.Equal(t, ui.StateInput, c.Snapshot().Active)

	done, err = c.KeyDown(context.Background(), "Enter", "query")
	require.NoError(t, err)
	assert.Equal(t, "query", <-d.calls)
	d.replies <- reply{}
	wait(t, done)
	assert.Equal(t, ui.StateResults, c.Snapshot().Active)
}

func TestController_ShowState(t *testing.T) {
	t.Parallel()

	c, _, _ := newController()
	for _, s := range []ui.State{ui.StateLoading, ui.StateResults, ui.StateInput} {
		c.ShowState(s)
		assert.Equal(t, s, c.Snapshot().Active)
	}
}

func TestController_Subscribe(t *testing.T) {
	t.Parallel()

	c, _, d := newController()
	updates, cancel := c.Subscribe()
	defer cancel()

	assert.Equal(t, ui.StateInput, (<-updates).Active, "current state delivered first")

	done, err := c.Submit(context.Background(), "q")
	require.NoError(t, err)
	<-d.calls
	assert.Equal(t, ui.StateLoading, (<-updates).Active)

	d.replies <- reply{}
	wait(t, done)
	assert.Equal(t, ui.StateResults, (<-updates).Active)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "input", ui.StateInput.String())
	assert.Equal(t, "loading", ui.StateLoading.String())
	assert.Equal(t, "results", ui.StateResults.String())
	assert.Equal(t, "unknown", ui.State(9).String())
}
