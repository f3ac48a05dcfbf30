package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailctl/internal/api"
	"mailctl/internal/model"
	"mailctl/internal/notify"
	"mailctl/internal/query"
	"mailctl/internal/session"
	"mailctl/internal/settings"
	"mailctl/internal/store"
	"mailctl/internal/timer"
)

type fakeRenderer struct {
	mu       sync.Mutex
	rendered []string
	servers  []Server
	readOnly bool
}

func (r *fakeRenderer) Render(view View, part string, _ []model.NodeStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rendered = append(r.rendered, string(view)+"/"+part)
}

func (r *fakeRenderer) Servers(list []Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers = list
}

func (r *fakeRenderer) ReadOnly(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readOnly = on
}

func (r *fakeRenderer) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.rendered...)
}

type alertLog struct {
	mu   sync.Mutex
	msgs []string
}

func (l *alertLog) Alert(_ notify.Level, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, text)
}

func (l *alertLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.msgs...)
}

// fakeServer emulates one node. trusted makes stat answer without a
// password; authStatus overrides the auth route status code.
type fakeServer struct {
	trusted    bool
	readOnly   bool
	authStatus int
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pw := r.Header.Get(api.PasswordHeader)
	switch r.URL.Path {
	case "/neighbours":
		_, _ = w.Write([]byte(`{}`))
	case "/stat":
		if !f.trusted && pw != "q1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(api.Stat{ReadOnly: f.readOnly, Scanned: 10})
	case "/auth":
		if f.authStatus != 0 {
			w.WriteHeader(f.authStatus)
			return
		}
		if pw != "q1" && !f.trusted {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(api.AuthData{Auth: "ok", ReadOnly: f.readOnly})
	default:
		_, _ = w.Write([]byte(`{"rows":[]}`))
	}
}

type fixture struct {
	app      *App
	agg      *query.Aggregator
	client   *api.Client
	sess     *session.Session
	settings *settings.Settings
	timers   *timer.Controller
	renderer *fakeRenderer
	alerts   *alertLog
}

func newFixture(t *testing.T, srv *fakeServer) *fixture {
	t.Helper()
	s := httptest.NewServer(srv)
	t.Cleanup(s.Close)

	st, err := store.Open("")
	require.NoError(t, err)
	f := &fixture{
		client:   api.NewClient(time.Second),
		sess:     session.New(),
		settings: settings.New(st),
		timers:   timer.New(nil),
		renderer: &fakeRenderer{},
		alerts:   &alertLog{},
	}
	t.Cleanup(f.timers.StopAll)
	agg := query.New(f.client, f.sess, s.URL, query.WithNotifier(f.alerts))
	f.agg = agg
	f.app = New(Deps{
		Client:     f.client,
		Aggregator: agg,
		Session:    f.sess,
		Settings:   f.settings,
		Timers:     f.timers,
		Notifier:   f.alerts,
		Renderer:   f.renderer,
	}, Refresh{Status: time.Hour, History: time.Hour, Dataset: "day"})
	return f
}

func noPrompt(t *testing.T) Prompter {
	return PrompterFunc(func(context.Context, error) (string, error) {
		t.Fatalf("unexpected password prompt")
		return "", nil
	})
}

func TestConnect_TrustedSkipsPrompt(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeServer{trusted: true, readOnly: true})
	require.NoError(t, f.app.Connect(context.Background(), noPrompt(t)))

	assert.True(t, f.app.Connected())
	assert.True(t, f.app.ReadOnly())
	assert.True(t, f.renderer.readOnly)
	assert.Equal(t, []Server{
		{Name: model.AllServers, Enabled: true, Selected: true},
		{Name: model.LocalServer, Enabled: true},
	}, f.app.Servers())
	assert.Equal(t, settings.DefaultTimeout, f.client.Timeout())
}

func TestConnect_PromptsUntilAccepted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeServer{})
	_, err := f.settings.SetTimeout("1500")
	require.NoError(t, err)

	answers := []string{"café", "wrong", "q1"}
	var feedback []error
	p := PrompterFunc(func(_ context.Context, fb error) (string, error) {
		feedback = append(feedback, fb)
		pw := answers[0]
		answers = answers[1:]
		return pw, nil
	})

	require.NoError(t, f.app.Connect(context.Background(), p))
	require.Len(t, feedback, 3)
	assert.Nil(t, feedback[0])
	assert.ErrorIs(t, feedback[1], ErrInvalidPassword)
	assert.ErrorIs(t, feedback[2], ErrUnauthorized)
	assert.Equal(t, "q1", f.sess.Password())
	assert.Equal(t, 1500*time.Millisecond, f.client.Timeout(), "stored timeout applied after login")
}

func TestConnect_PrompterErrorAborts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeServer{})
	stop := errors.New("cancelled by user")
	err := f.app.Connect(context.Background(), PrompterFunc(func(context.Context, error) (string, error) {
		return "", stop
	}))
	assert.ErrorIs(t, err, stop)
	assert.False(t, f.app.Connected())
}

func TestConnect_OtherFailureAlertsStatusText(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeServer{authStatus: http.StatusInternalServerError})
	calls := 0
	stop := errors.New("give up")
	err := f.app.Connect(context.Background(), PrompterFunc(func(_ context.Context, fb error) (string, error) {
		calls++
		if calls > 1 {
			assert.Nil(t, fb)
			return "", stop
		}
		return "q1", nil
	}))
	assert.ErrorIs(t, err, stop)
	assert.Contains(t, f.alerts.all(), "Internal Server Error")
}

func TestSwitchView_RendersAndSchedules(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeServer{trusted: true})
	require.ErrorIs(t, f.app.SwitchView(context.Background(), ViewStatus, TriggerTab), ErrNotConnected)
	require.NoError(t, f.app.Connect(context.Background(), noPrompt(t)))

	require.NoError(t, f.app.SwitchView(context.Background(), ViewStatus, TriggerTab))
	assert.Equal(t, []string{"status/stat"}, f.renderer.calls())
	assert.Contains(t, f.timers.Active(), "status")
	assert.NotEmpty(t, f.app.Data(ViewStatus, "stat"))

	require.NoError(t, f.app.SetRefresh(context.Background(), Refresh{Status: 0, History: time.Hour}))
	assert.Equal(t, []string{"status/stat"}, f.renderer.calls(), "interval change does not render")
	assert.Equal(t, timer.NoSchedule, f.timers.Countdown())
	assert.NotContains(t, f.timers.Active(), "status")

	require.NoError(t, f.app.SwitchView(context.Background(), ViewConfiguration, TriggerTab))
	assert.Equal(t, []string{"status/stat", "configuration/actions", "configuration/maps"}, f.renderer.calls())
	assert.Empty(t, f.timers.Active())
}

func TestSwitchView_HistorySkipsErrorsWhenReadOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeServer{trusted: true, readOnly: true})
	require.NoError(t, f.app.Connect(context.Background(), noPrompt(t)))
	require.NoError(t, f.app.SwitchView(context.Background(), ViewHistory, TriggerRefresh))
	assert.Equal(t, []string{"history/history"}, f.renderer.calls())

	require.NoError(t, f.app.SwitchView(context.Background(), ViewSelectors, TriggerTab))
	assert.Equal(t, []string{"history/history"}, f.renderer.calls(), "selector lists hidden in read-only mode")
}

func TestSelectServer_Rerenders(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeServer{trusted: true})
	require.NoError(t, f.app.Connect(context.Background(), noPrompt(t)))
	require.NoError(t, f.app.SwitchView(context.Background(), ViewSymbols, TriggerTab))
	require.NoError(t, f.app.SelectServer(context.Background(), model.LocalServer))

	assert.Equal(t, []string{"symbols/symbols", "symbols/symbols"}, f.renderer.calls())
	servers := f.app.Servers()
	assert.False(t, servers[0].Selected)
	assert.True(t, servers[1].Selected)
}

func TestDisconnect_TearsDown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeServer{trusted: true})
	require.NoError(t, f.app.Connect(context.Background(), noPrompt(t)))
	f.sess.SetPassword("q1")
	require.NoError(t, f.app.SwitchView(context.Background(), ViewHistory, TriggerTab))
	require.NoError(t, f.app.SelectServer(context.Background(), model.LocalServer))
	require.NotEmpty(t, f.agg.Neighbours())
	require.Equal(t, model.LocalServer, f.agg.Selected())

	require.NoError(t, f.app.SwitchView(context.Background(), ViewDisconnect, TriggerTab))
	assert.False(t, f.app.Connected())
	assert.Equal(t, model.AllServers, f.agg.Selected())
	assert.Empty(t, f.agg.Neighbours())
	assert.Empty(t, f.timers.Active())
	assert.Empty(t, f.sess.Password())
	assert.Nil(t, f.app.Data(ViewHistory, "history"))
	assert.ErrorIs(t, f.app.SwitchView(context.Background(), ViewStatus, TriggerTab), ErrNotConnected)
}

func TestSwitchView_ZeroIntervalShowsNoSchedule(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeServer{trusted: true})
	require.NoError(t, f.app.Connect(context.Background(), noPrompt(t)))
	require.NoError(t, f.app.SetRefresh(context.Background(), Refresh{Status: 0, History: time.Hour, Dataset: "day"}))

	require.NoError(t, f.app.SwitchView(context.Background(), ViewStatus, TriggerTab))
	assert.Empty(t, f.timers.Active())
	assert.Equal(t, timer.NoSchedule, f.timers.Countdown())
	assert.NotNil(t, f.app.Data(ViewStatus, "stat"))
}

func TestThroughputInterval(t *testing.T) {
	t.Parallel()

	assert.Zero(t, ThroughputInterval(Refresh{Dataset: "day"}))
	assert.Equal(t, time.Minute, ThroughputInterval(Refresh{Dynamic: true, Dataset: "day"}))
	assert.Equal(t, 5*time.Minute, ThroughputInterval(Refresh{Dynamic: true, Dataset: "week"}))
	assert.Equal(t, time.Hour, ThroughputInterval(Refresh{Dynamic: true, Dataset: "month"}))
}

func TestPrintableASCII(t *testing.T) {
	t.Parallel()

	assert.True(t, printableASCII(""))
	assert.True(t, printableASCII("p@ss w0rd~"))
	assert.False(t, printableASCII("tab\there"))
	assert.False(t, printableASCII("café"))
}
