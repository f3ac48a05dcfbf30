// Package dashboard is the application context of one console connection:
// login, the authorized server list, view switching with polling, and
// teardown on disconnect.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"mailctl/internal/api"
	"mailctl/internal/model"
	"mailctl/internal/notify"
	"mailctl/internal/query"
	"mailctl/internal/selectors"
	"mailctl/internal/session"
	"mailctl/internal/settings"
	"mailctl/internal/timer"
)

var (
	ErrInvalidPassword = errors.New("password contains invalid characters")
	ErrUnauthorized    = errors.New("wrong password")
	ErrNotConnected    = errors.New("not connected")
	ErrBusy            = errors.New("refresh already in progress")
	ErrReadOnly        = selectors.ErrReadOnly
)

// Prompter asks the user for a password. feedback carries the reason the
// previous attempt was rejected, nil on the first prompt.
type Prompter interface {
	Password(ctx context.Context, feedback error) (string, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, feedback error) (string, error)

// Password implements Prompter.
func (f PrompterFunc) Password(ctx context.Context, feedback error) (string, error) {
	return f(ctx, feedback)
}

// Server is one entry of the server selector.
type Server struct {
	Name     string
	Enabled  bool
	Selected bool
}

// Renderer is the presentation layer.
type Renderer interface {
	Render(view View, part string, statuses []model.NodeStatus)
	Servers(list []Server)
	ReadOnly(on bool)
}

// NopRenderer discards output.
type NopRenderer struct{}

func (NopRenderer) Render(View, string, []model.NodeStatus) {}
func (NopRenderer) Servers([]Server)                         {}
func (NopRenderer) ReadOnly(bool)                            {}

// Refresh holds the polling settings of the views.
type Refresh struct {
	Status  time.Duration
	History time.Duration
	// Dynamic enables polling of the throughput view.
	Dynamic bool
	Dataset string
}

// Deps are the components an App is built from.
type Deps struct {
	Client     *api.Client
	Aggregator *query.Aggregator
	Session    *session.Session
	Settings   *settings.Settings
	Timers     *timer.Controller
	Notifier   notify.Notifier
	Renderer   Renderer
	Logger     *slog.Logger
}

// App owns the state that lives from login to disconnect.
type App struct {
	client   *api.Client
	agg      *query.Aggregator
	sess     *session.Session
	settings *settings.Settings
	timers   *timer.Controller
	notifier notify.Notifier
	renderer Renderer
	log      *slog.Logger

	mu        sync.Mutex
	refresh   Refresh
	connected bool
	view      View
	servers   []Server
	data      map[string][]model.NodeStatus
}

// New wires an App. The client timeout follows the settings store.
func New(d Deps, refresh Refresh) *App {
	if d.Notifier == nil {
		d.Notifier = notify.Nop
	}
	if d.Renderer == nil {
		d.Renderer = NopRenderer{}
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if d.Timers == nil {
		d.Timers = timer.New(nil, timer.WithLogger(d.Logger))
	}
	a := &App{
		client:   d.Client,
		agg:      d.Aggregator,
		sess:     d.Session,
		settings: d.Settings,
		timers:   d.Timers,
		notifier: d.Notifier,
		renderer: d.Renderer,
		log:      d.Logger,
		refresh:  refresh,
		data:     map[string][]model.NodeStatus{},
	}
	a.settings.OnTimeoutChange(a.client.SetTimeout)
	return a
}

// Connect authorizes the session and loads the server list. The stat probe
// succeeds without a password for trusted clients; otherwise p is asked
// until the server accepts a password or p fails.
func (a *App) Connect(ctx context.Context, p Prompter) error {
	a.client.SetTimeout(a.settings.ConnectTimeout())

	resp, err := a.client.Do(ctx, api.Request{
		BaseURL: a.agg.LocalURL(),
		Path:    "stat",
		Header:  http.Header{api.PasswordHeader: []string{a.sess.Password()}},
	}, nil)
	if err == nil {
		var st api.Stat
		if err := json.Unmarshal(resp.Body, &st); err == nil {
			a.sess.SetReadOnly(st.ReadOnly)
		}
		a.log.Debug("stat probe accepted without login")
		return a.displayUI(ctx)
	}
	a.log.Debug("stat probe rejected", "error", err)

	var feedback error
	for {
		password, err := p.Password(ctx, feedback)
		if err != nil {
			return err
		}
		if !printableASCII(password) {
			feedback = ErrInvalidPassword
			continue
		}

		ok, err := a.login(ctx, password)
		switch {
		case ok:
			return a.displayUI(ctx)
		case ctx.Err() != nil:
			return ctx.Err()
		case err == nil, api.IsUnauthorized(err):
			feedback = ErrUnauthorized
		default:
			a.notifier.Alert(notify.Error, statusText(err))
			feedback = nil
		}
	}
}

// login submits password to the local node only.
func (a *App) login(ctx context.Context, password string) (bool, error) {
	var (
		auth    api.AuthData
		nodeErr error
	)
	_, err := a.agg.Query(ctx, "auth", query.Options{
		Server:  model.LocalServer,
		Headers: map[string]string{api.PasswordHeader: password},
		Params:  query.Params{Quiet: true},
		Success: func(statuses []model.NodeStatus, _ *api.Response) {
			_ = json.Unmarshal(statuses[0].Data, &auth)
		},
		Error: func(_ model.NodeStatus, err error) { nodeErr = err },
	})
	if nodeErr != nil {
		return false, nodeErr
	}
	if err != nil {
		return false, err
	}
	if auth.Auth != "ok" {
		return false, nil
	}
	a.sess.SetReadOnly(auth.ReadOnly)
	a.sess.SetPassword(password)
	a.log.Info("login accepted", "read_only", auth.ReadOnly)
	return true, nil
}

// displayUI asks every node for auth status to build the server list, then
// applies the timeout setting and the read-only mode.
func (a *App) displayUI(ctx context.Context) error {
	_, err := a.agg.Query(ctx, "auth", query.Options{
		Server:       model.AllServers,
		ErrorMessage: "Cannot get server status",
		Success: func(statuses []model.NodeStatus, _ *api.Response) {
			a.setServers(statuses)
		},
		Complete: func() {
			a.settings.Apply()
			a.renderer.ReadOnly(a.sess.ReadOnly())
			a.mu.Lock()
			a.connected = true
			a.mu.Unlock()
		},
	})
	if err != nil && !errors.Is(err, query.ErrAllNodesFailed) {
		return err
	}
	a.log.Info("connected", "read_only", a.sess.ReadOnly(), "servers", len(a.Servers())-1)
	return nil
}

func (a *App) setServers(statuses []model.NodeStatus) {
	selected := a.agg.Selected()
	list := []Server{{Name: model.AllServers, Enabled: true, Selected: selected == model.AllServers}}
	for _, s := range statuses {
		list = append(list, Server{
			Name:     s.Name,
			Enabled:  s.Status || s.Name == selected,
			Selected: s.Name == selected,
		})
	}
	a.mu.Lock()
	a.servers = list
	a.mu.Unlock()
	a.renderer.Servers(list)
}

// Servers returns the server selector entries, All SERVERS first.
func (a *App) Servers() []Server {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Server(nil), a.servers...)
}

// Connected reports whether the authorized view is active.
func (a *App) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// ReadOnly reports the server-declared read-only mode.
func (a *App) ReadOnly() bool {
	return a.sess.ReadOnly()
}

// Selectors returns a selector checker bound to the current selection.
func (a *App) Selectors() *selectors.Checker {
	return selectors.NewChecker(a.agg, a.sess.ReadOnly, a.notifier)
}

// Data returns the statuses last rendered for view and part.
func (a *App) Data(view View, part string) []model.NodeStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.data[dataKey(view, part)]
}

// Disconnect stops polling, drops view data, the neighbour cache, the server
// selection and the session, and returns to the unauthenticated state.
func (a *App) Disconnect() {
	a.timers.StopAll()
	a.agg.Reset()
	a.mu.Lock()
	a.data = map[string][]model.NodeStatus{}
	a.servers = nil
	a.connected = false
	a.view = ""
	a.mu.Unlock()
	a.sess.Clear()
	a.log.Info("disconnected")
}

func dataKey(view View, part string) string {
	return string(view) + "/" + part
}

func printableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

func statusText(err error) string {
	var se *api.StatusError
	if errors.As(err, &se) {
		return se.StatusText()
	}
	return err.Error()
}
