package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailctl/internal/config"
	"mailctl/internal/dashboard"
	"mailctl/internal/history"
	"mailctl/internal/query"
	"mailctl/internal/settings"
	"mailctl/internal/store"
)

const usage = `mailctl - mail filter cluster console

Usage:
  mailctl connect [--config path] [--password pw]
  mailctl query <path> [--server name] [--method GET] [--data body] [--param k=v] [--json]
  mailctl neighbours [--config path]
  mailctl watch [--view status] [--server name] [--dynamic] [--dataset day]
                [--status-every 10s|off] [--history-every 1m|off] [--metrics-listen addr]
  mailctl selectors check <selector>
  mailctl selectors test <selector> [--file message.eml]
  mailctl selectors list extractors|transforms
  mailctl history [--order magnitude|name|score] [--limit n] [--csv out] [--append path] [--summary]
  mailctl history --from-csv path [--window 24h]
  mailctl settings show
  mailctl settings timeout <ms>|restore
  mailctl settings locale browser|custom [tag]
  mailctl settings page-size <table> <n>
  mailctl config init [--path path] [--server url]

Every command accepts --config, --server-url and --password. The password
may also come from MAILCTL_PASSWORD or the config file; otherwise it is
asked for on the terminal.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	switch cmd {
	case "connect":
		handleConnect(os.Args[2:])
	case "query":
		handleQuery(os.Args[2:])
	case "neighbours", "neighbors":
		handleNeighbours(os.Args[2:])
	case "watch":
		handleWatch(os.Args[2:])
	case "selectors":
		handleSelectors(os.Args[2:])
	case "history":
		handleHistory(os.Args[2:])
	case "settings":
		handleSettings(os.Args[2:])
	case "config":
		handleConfig(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}

func handleConnect(args []string) {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	common := addCommonFlags(fs)
	_ = fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	c := mustConnect(ctx, common)
	defer c.close()

	mode := "read-write"
	if c.app.ReadOnly() {
		mode = "read-only"
	}
	fmt.Fprintf(os.Stdout, "connected to %s (%s)\n", c.cfg.Server, mode)
	for _, s := range c.app.Servers() {
		fmt.Fprintln(os.Stdout, serverLine(s))
	}
}

func handleQuery(args []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fatal(errors.New("query path required"))
	}
	path := args[0]

	fs := flag.NewFlagSet("query", flag.ExitOnError)
	common := addCommonFlags(fs)
	server := fs.String("server", "", "node name, \"All SERVERS\" or empty for the selected server")
	method := fs.String("method", "GET", "HTTP method")
	data := fs.String("data", "", "request body")
	asJSON := fs.Bool("json", false, "print the raw node statuses as JSON")
	var params paramList
	fs.Var(&params, "param", "query parameter k=v (repeatable)")
	_ = fs.Parse(args[1:])

	ctx, cancel := signalContext()
	defer cancel()

	c := mustConnect(ctx, common)
	defer c.close()

	o := query.Options{
		Method: *method,
		Server: *server,
		Params: query.Params{Query: params.values()},
	}
	if *data != "" {
		o.Data = *data
	}
	statuses, err := c.agg.Query(ctx, path, o)
	if err != nil && !errors.Is(err, query.ErrAllNodesFailed) {
		fatal(err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		fatal(enc.Encode(statuses))
	} else {
		for _, s := range statuses {
			printStatus(os.Stdout, s)
		}
	}
	if err != nil {
		os.Exit(1)
	}
}

func handleNeighbours(args []string) {
	fs := flag.NewFlagSet("neighbours", flag.ExitOnError)
	common := addCommonFlags(fs)
	_ = fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	c := mustConnect(ctx, common)
	defer c.close()

	for _, n := range c.agg.Neighbours().Nodes() {
		nodeURL := n.URL
		if nodeURL == "" {
			nodeURL = c.agg.LocalURL()
		}
		fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", n.Name, n.Host, nodeURL)
	}
}

func handleWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	common := addCommonFlags(fs)
	viewName := fs.String("view", string(dashboard.ViewStatus), "view to watch")
	server := fs.String("server", "", "select a node before watching")
	dynamic := fs.Bool("dynamic", false, "poll the throughput graph")
	dataset := fs.String("dataset", "", "throughput dataset (hourly, day, week, month)")
	var statusEvery, historyEvery intervalFlag
	fs.Var(&statusEvery, "status-every", "status refresh interval, or off")
	fs.Var(&historyEvery, "history-every", "history refresh interval, or off")
	metricsListen := fs.String("metrics-listen", "", "serve prometheus metrics on this address")
	_ = fs.Parse(args)

	view, err := dashboard.ParseView(*viewName)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	c := mustConnect(ctx, common)
	defer c.close()

	r := c.refresh()
	if *dynamic {
		r.Dynamic = true
	}
	if *dataset != "" {
		r.Dataset = *dataset
	}
	overrideIntervals(&r, statusEvery, historyEvery)
	if err := c.app.SetRefresh(ctx, r); err != nil {
		fatal(err)
	}

	listen := c.cfg.MetricsListen
	if *metricsListen != "" {
		listen = *metricsListen
	}
	if listen != "" {
		srv := serveMetrics(c, listen)
		defer srv.Close()
	}

	if *server != "" {
		if err := c.app.SelectServer(ctx, *server); err != nil {
			fatal(err)
		}
	}
	if err := c.app.SwitchView(ctx, view, dashboard.TriggerTab); err != nil {
		fatal(err)
	}
	if view == dashboard.ViewDisconnect {
		return
	}

	<-ctx.Done()
}

func serveMetrics(c *console, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("metrics listener failed", "addr", addr, "error", err)
		}
	}()
	c.log.Info("serving metrics", "addr", addr)
	return srv
}

func handleSelectors(args []string) {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, "selectors subcommand required\n")
		os.Exit(2)
	}
	sub := args[0]
	switch sub {
	case "check", "test", "list":
	default:
		fmt.Fprintf(os.Stderr, "unknown selectors subcommand %q\n", sub)
		os.Exit(2)
	}

	fs := flag.NewFlagSet("selectors "+sub, flag.ExitOnError)
	common := addCommonFlags(fs)
	file := fs.String("file", "", "message file for test, - for stdin")
	rest := parseInterspersed(fs, args[1:])
	if len(rest) == 0 {
		fatal(fmt.Errorf("selectors %s: argument required", sub))
	}

	ctx, cancel := signalContext()
	defer cancel()

	c := mustConnect(ctx, common)
	defer c.close()
	checker := c.app.Selectors()

	switch sub {
	case "check":
		ok, err := checker.CheckSelector(ctx, rest[0])
		if err != nil {
			fatal(err)
		}
		if !ok {
			fmt.Fprintln(os.Stdout, "invalid")
			os.Exit(1)
		}
		fmt.Fprintln(os.Stdout, "valid")
	case "test":
		msg, err := readMessage(*file)
		if err != nil {
			fatal(err)
		}
		out, err := checker.CheckMessage(ctx, rest[0], msg)
		if err != nil {
			fatal(err)
		}
		fmt.Fprintln(os.Stdout, out)
	case "list":
		entries, err := checker.List(ctx, rest[0])
		if err != nil {
			fatal(err)
		}
		for _, e := range entries {
			fmt.Fprintf(os.Stdout, "%-24s %s\n", e.Name, e.Description)
		}
	}
}

func readMessage(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func handleHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	common := addCommonFlags(fs)
	orderName := fs.String("order", string(history.OrderMagnitude), "symbol order: magnitude, name or score")
	limit := fs.Int("limit", 0, "rows to print, default is the history page size")
	csvOut := fs.String("csv", "", "write the fetched rows to this CSV file")
	appendPath := fs.String("append", "", "append the fetched rows to this CSV file")
	summary := fs.Bool("summary", false, "print a summary of the fetched rows")
	fromCSV := fs.String("from-csv", "", "summarize a CSV file instead of querying")
	window := fs.Duration("window", 24*time.Hour, "summary time window")
	_ = fs.Parse(args)

	if *fromCSV != "" {
		items, err := history.ReadCSV(*fromCSV)
		if err != nil {
			fatal(err)
		}
		printSummary(os.Stdout, history.Summarize(items, time.Now().Add(-*window)))
		return
	}

	order, err := history.ParseOrder(*orderName)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	c := mustConnect(ctx, common)
	defer c.close()

	statuses, err := c.agg.Query(ctx, "history", query.Options{ErrorOnceID: "alerted_history_"})
	if err != nil && !errors.Is(err, query.ErrAllNodesFailed) {
		fatal(err)
	}

	var items []history.Item
	for _, s := range statuses {
		if !s.Status {
			continue
		}
		rows, err := history.DecodeRows(s.Data)
		if err != nil {
			c.log.Warn("skipping node history", "node", s.Name, "error", err)
			continue
		}
		items = append(items, history.Process(rows, history.ProcessOptions{
			Table:  history.TableHistory,
			Order:  order,
			Format: c.settings.FormatUnix,
		})...)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].UnixTime > items[j].UnixTime })

	if *csvOut != "" {
		f, err := os.Create(*csvOut)
		if err != nil {
			fatal(err)
		}
		if err := history.WriteCSV(f, items); err != nil {
			f.Close()
			fatal(err)
		}
		fatal(f.Close())
	}
	if *appendPath != "" {
		fatal(history.AppendCSV(*appendPath, items))
	}

	n := *limit
	if n <= 0 {
		n = c.settings.PageSize(history.TableHistory)
	}
	printItems(os.Stdout, items, n)
	if *summary {
		printSummary(os.Stdout, history.Summarize(items, time.Time{}))
	}
}

func handleSettings(args []string) {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, "settings subcommand required\n")
		os.Exit(2)
	}
	sub := args[0]

	fs := flag.NewFlagSet("settings "+sub, flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	rest := parseInterspersed(fs, args[1:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	st, err := store.Open(cfg.SettingsPath)
	if err != nil {
		fatal(err)
	}
	s := settings.New(st)

	switch sub {
	case "show":
		printSettings(os.Stdout, s)
	case "timeout":
		if len(rest) != 1 {
			fatal(errors.New("settings timeout: <ms>|restore required"))
		}
		var d time.Duration
		if rest[0] == "restore" {
			d, err = s.RestoreTimeout()
		} else {
			d, err = s.SetTimeout(rest[0])
		}
		if err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stdout, "timeout=%dms\n", d.Milliseconds())
	case "locale":
		if len(rest) == 0 {
			fatal(errors.New("settings locale: browser|custom required"))
		}
		if rest[0] == settings.LocaleCustom && len(rest) > 1 {
			if err := s.SetCustomLocale(rest[1]); err != nil {
				fatal(err)
			}
		}
		if err := s.SetLocaleMode(rest[0]); err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stdout, "locale=%s sample=%s\n", displayLocale(s), s.FormatUnix(float64(time.Now().Unix())))
	case "page-size":
		if len(rest) != 2 {
			fatal(errors.New("settings page-size: <table> <n> required"))
		}
		if !validTable(rest[0]) {
			fatal(fmt.Errorf("unknown table %q (want %s)", rest[0], strings.Join(settings.Tables, ", ")))
		}
		n, err := strconv.Atoi(rest[1])
		if err != nil {
			fatal(fmt.Errorf("page size: %w", err))
		}
		ok, err := s.SetPageSize(rest[0], n)
		if err != nil {
			fatal(err)
		}
		if !ok {
			fatal(fmt.Errorf("page size must be positive, got %d", n))
		}
		fmt.Fprintf(os.Stdout, "%s page size=%d\n", rest[0], n)
	default:
		fmt.Fprintf(os.Stderr, "unknown settings subcommand %q\n", sub)
		os.Exit(2)
	}
}

func handleConfig(args []string) {
	if len(args) == 0 || args[0] != "init" {
		fmt.Fprint(os.Stderr, "config init required\n")
		os.Exit(2)
	}

	fs := flag.NewFlagSet("config init", flag.ExitOnError)
	path := fs.String("path", "", "config file path")
	server := fs.String("server", config.DefaultServer, "base URL of the local node")
	_ = fs.Parse(args[1:])

	if *path == "" {
		*path = filepath.Join(config.DefaultDir(), "mailctl.yaml")
	}
	cfg := config.DefaultConfig()
	cfg.Server = normalizeBaseURL(*server)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}
	if err := config.Save(*path, cfg); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", *path)
}

type commonFlags struct {
	config    *string
	serverURL *string
	password  *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		config:    fs.String("config", "", "path to YAML config"),
		serverURL: fs.String("server-url", "", "base URL of the local node"),
		password:  fs.String("password", "", "controller password"),
	}
}

// parseInterspersed parses flags that may follow positional arguments.
func parseInterspersed(fs *flag.FlagSet, args []string) []string {
	var positional []string
	for {
		_ = fs.Parse(args)
		args = fs.Args()
		if len(args) == 0 {
			return positional
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

// intervalFlag is a refresh interval override; "off" or 0 disables polling.
type intervalFlag struct {
	d   time.Duration
	set bool
}

func (f *intervalFlag) String() string {
	if !f.set {
		return ""
	}
	if f.d == 0 {
		return config.IntervalOff
	}
	return f.d.String()
}

func (f *intervalFlag) Set(v string) error {
	d, err := config.ParseInterval(v)
	if err != nil {
		return err
	}
	f.d, f.set = d, true
	return nil
}

func overrideIntervals(r *dashboard.Refresh, status, history intervalFlag) {
	if status.set {
		r.Status = status.d
	}
	if history.set {
		r.History = history.d
	}
}

type paramList []string

func (p *paramList) String() string { return strings.Join(*p, ",") }

func (p *paramList) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("param %q: want k=v", v)
	}
	*p = append(*p, v)
	return nil
}

func (p paramList) values() url.Values {
	if len(p) == 0 {
		return nil
	}
	out := url.Values{}
	for _, kv := range p {
		k, v, _ := strings.Cut(kv, "=")
		out.Add(k, v)
	}
	return out
}

func validTable(name string) bool {
	for _, t := range settings.Tables {
		if t == name {
			return true
		}
	}
	return false
}

func displayLocale(s *settings.Settings) string {
	if l := s.Locale(); l != "" {
		return l
	}
	return "platform default"
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func normalizeBaseURL(addr string) string {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	if !strings.HasSuffix(addr, "/") {
		addr += "/"
	}
	return addr
}

func serverLine(s dashboard.Server) string {
	mark := " "
	if s.Selected {
		mark = "*"
	}
	state := ""
	if !s.Enabled {
		state = " (unavailable)"
	}
	return fmt.Sprintf("%s %s%s", mark, s.Name, state)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()
	return ctx, cancel
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
