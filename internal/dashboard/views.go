package dashboard

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"mailctl/internal/api"
	"mailctl/internal/model"
	"mailctl/internal/query"
	"mailctl/internal/selectors"
)

// View is one tab of the console.
type View string

const (
	ViewStatus        View = "status"
	ViewThroughput    View = "throughput"
	ViewConfiguration View = "configuration"
	ViewSymbols       View = "symbols"
	ViewHistory       View = "history"
	ViewScan          View = "scan"
	ViewSelectors     View = "selectors"
	ViewDisconnect    View = "disconnect"
)

// Views lists every view in tab order.
var Views = []View{
	ViewStatus, ViewThroughput, ViewConfiguration, ViewSymbols,
	ViewHistory, ViewScan, ViewSelectors, ViewDisconnect,
}

// ParseView validates a view name.
func ParseView(s string) (View, error) {
	for _, v := range Views {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// Trigger tells SwitchView what caused the switch.
type Trigger int

const (
	// TriggerTab is a tab click; the view renders immediately.
	TriggerTab Trigger = iota
	// TriggerRefresh is the manual refresh control.
	TriggerRefresh
	// TriggerAutoRefresh is a change of the polling interval; the view
	// is only rescheduled.
	TriggerAutoRefresh
)

var throughputStep = map[string]time.Duration{
	"day":  time.Minute,
	"week": 5 * time.Minute,
}

// ThroughputInterval returns the polling interval of the throughput graph,
// zero unless dynamic refresh is enabled.
func ThroughputInterval(r Refresh) time.Duration {
	if !r.Dynamic {
		return 0
	}
	if step, ok := throughputStep[r.Dataset]; ok {
		return step
	}
	return time.Hour
}

// View returns the active view.
func (a *App) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

// SwitchView stops every timer, installs the polling timer of view and,
// unless trigger is TriggerAutoRefresh, renders the view once.
func (a *App) SwitchView(ctx context.Context, view View, trigger Trigger) error {
	if view == ViewDisconnect {
		a.Disconnect()
		return nil
	}
	if !a.Connected() {
		return ErrNotConnected
	}

	a.timers.StopAll()
	a.mu.Lock()
	a.view = view
	r := a.refresh
	a.mu.Unlock()

	fetch := a.fetcher(view, r)
	switch view {
	case ViewStatus:
		a.timers.SetAutoRefresh(r.Status, string(view), fetch)
	case ViewThroughput:
		a.timers.SetAutoRefresh(ThroughputInterval(r), string(view), fetch)
	case ViewHistory:
		a.timers.SetAutoRefresh(r.History, string(view), fetch)
	}
	a.log.Debug("view switched", "view", view, "trigger", trigger)

	if trigger == TriggerAutoRefresh || fetch == nil {
		return nil
	}
	if !a.timers.Refresh(ctx, fetch) {
		return ErrBusy
	}
	return nil
}

// SetRefresh changes the polling settings and reschedules the active view.
func (a *App) SetRefresh(ctx context.Context, r Refresh) error {
	a.mu.Lock()
	a.refresh = r
	view := a.view
	a.mu.Unlock()
	if view == "" || !a.Connected() {
		return nil
	}
	return a.SwitchView(ctx, view, TriggerAutoRefresh)
}

// SelectServer changes the global server selection and re-renders the
// active view.
func (a *App) SelectServer(ctx context.Context, name string) error {
	a.agg.SetSelected(name)
	selected := a.agg.Selected()

	a.mu.Lock()
	for i := range a.servers {
		a.servers[i].Selected = a.servers[i].Name == selected
		if a.servers[i].Selected {
			a.servers[i].Enabled = true
		}
	}
	view := a.view
	a.mu.Unlock()

	if view == "" {
		return nil
	}
	return a.SwitchView(ctx, view, TriggerTab)
}

func (a *App) fetcher(view View, r Refresh) func(context.Context) {
	switch view {
	case ViewStatus:
		return func(ctx context.Context) {
			a.fetch(ctx, view, "stat", "stat", query.Options{})
		}
	case ViewThroughput:
		return func(ctx context.Context) {
			a.fetch(ctx, view, "graph", "graph", query.Options{
				Params: query.Params{Query: url.Values{"type": {r.Dataset}}},
			})
		}
	case ViewConfiguration:
		return func(ctx context.Context) {
			a.fetch(ctx, view, "actions", "actions", query.Options{})
			a.fetch(ctx, view, "maps", "maps", query.Options{})
		}
	case ViewSymbols:
		return func(ctx context.Context) {
			a.fetch(ctx, view, "symbols", "symbols", query.Options{})
		}
	case ViewHistory:
		return func(ctx context.Context) {
			a.fetch(ctx, view, "history", "history", query.Options{ErrorOnceID: "alerted_history_"})
			if !a.sess.ReadOnly() {
				a.fetch(ctx, view, "errors", "errors", query.Options{ErrorOnceID: "alerted_errors_"})
			}
		}
	case ViewSelectors:
		return func(ctx context.Context) {
			if a.sess.ReadOnly() {
				return
			}
			server := selectors.Server(a.agg.Selected())
			for _, kind := range []string{"extractors", "transforms"} {
				a.fetch(ctx, view, kind, "plugins/selectors/list_"+kind, query.Options{Server: server})
			}
		}
	}
	return nil
}

// fetch queries path and hands the statuses to the renderer.
func (a *App) fetch(ctx context.Context, view View, part, path string, o query.Options) {
	o.Success = func(statuses []model.NodeStatus, _ *api.Response) {
		a.mu.Lock()
		a.data[dataKey(view, part)] = statuses
		a.mu.Unlock()
		a.renderer.Render(view, part, statuses)
	}
	if _, err := a.agg.Query(ctx, path, o); err != nil {
		a.log.Warn("view refresh failed", "view", view, "path", path, "error", err)
	}
}
