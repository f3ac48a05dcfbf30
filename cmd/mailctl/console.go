package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mailctl/internal/api"
	"mailctl/internal/config"
	"mailctl/internal/dashboard"
	"mailctl/internal/metrics"
	"mailctl/internal/notify"
	"mailctl/internal/query"
	"mailctl/internal/session"
	"mailctl/internal/settings"
	"mailctl/internal/store"
	"mailctl/internal/timer"
)

// console is the set of components one CLI invocation works with.
type console struct {
	cfg      config.Config
	log      *slog.Logger
	registry *prometheus.Registry
	settings *settings.Settings
	agg      *query.Aggregator
	timers   *timer.Controller
	app      *dashboard.App
}

func newConsole(common commonFlags) (*console, error) {
	cfg, err := loadConfig(*common.config)
	if err != nil {
		return nil, err
	}
	if *common.serverURL != "" {
		cfg.Server = normalizeBaseURL(*common.serverURL)
	}
	if *common.password != "" {
		cfg.Password = *common.password
	}

	log, err := cfg.Log.Logger(os.Stderr)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}
	s := settings.New(st)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m, err := metrics.NewQuery("mailctl", registry)
	if err != nil {
		return nil, err
	}

	banners := notify.NewBanners(os.Stderr)
	client := api.NewClient(s.ConnectTimeout())
	sess := session.New()
	agg := query.New(client, sess, cfg.Server,
		query.WithNotifier(banners),
		query.WithProgress(progressFor(os.Stderr)),
		query.WithLogger(log.With("component", "query")),
		query.WithMetrics(m),
	)

	r := newTermRenderer(os.Stdout, s)
	timers := timer.New(timer.DisplayFunc(r.setCountdown), timer.WithLogger(log.With("component", "timer")))

	c := &console{
		cfg:      cfg,
		log:      log,
		registry: registry,
		settings: s,
		agg:      agg,
		timers:   timers,
	}
	c.app = dashboard.New(dashboard.Deps{
		Client:     client,
		Aggregator: agg,
		Session:    sess,
		Settings:   s,
		Timers:     timers,
		Notifier:   banners,
		Renderer:   r,
		Logger:     log.With("component", "dashboard"),
	}, c.refresh())
	return c, nil
}

// mustConnect builds the console and logs in, or exits.
func mustConnect(ctx context.Context, common commonFlags) *console {
	c, err := newConsole(common)
	if err != nil {
		fatal(err)
	}
	p := newPasswordPrompter(c.cfg.Password, os.Stdin, os.Stderr)
	if err := c.app.Connect(ctx, p); err != nil {
		fatal(fmt.Errorf("connect %s: %w", c.cfg.Server, err))
	}
	return c
}

func (c *console) refresh() dashboard.Refresh {
	return dashboard.Refresh{
		Status:  c.cfg.Refresh.Status,
		History: c.cfg.Refresh.History,
		Dynamic: c.cfg.Refresh.Dynamic,
		Dataset: c.cfg.Refresh.Dataset,
	}
}

func (c *console) close() {
	_ = c.app.SwitchView(context.Background(), dashboard.ViewDisconnect, dashboard.TriggerTab)
}

// progressFor draws a bar only when out is a terminal.
func progressFor(out *os.File) notify.Progress {
	if !isTerminal(out) {
		return notify.NopProgress{}
	}
	return notify.NewProgressLine(out)
}

func printSettings(w io.Writer, s *settings.Settings) {
	fmt.Fprintf(w, "timeout:       %dms\n", s.Timeout().Milliseconds())
	fmt.Fprintf(w, "locale mode:   %s\n", s.LocaleMode())
	custom := s.CustomLocale()
	if custom == "" {
		custom = "-"
	}
	fmt.Fprintf(w, "custom locale: %s\n", custom)
	fmt.Fprintf(w, "effective:     %s\n", displayLocale(s))
	sizes := make([]string, 0, len(settings.Tables))
	for _, t := range settings.Tables {
		sizes = append(sizes, fmt.Sprintf("%s=%d", t, s.PageSize(t)))
	}
	fmt.Fprintf(w, "page sizes:    %s\n", strings.Join(sizes, " "))
}
