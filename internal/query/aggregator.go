// Package query fans one logical request out to one or more cluster nodes
// and hands back a single aggregated result.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mailctl/internal/api"
	"mailctl/internal/metrics"
	"mailctl/internal/model"
	"mailctl/internal/notify"
	"mailctl/internal/session"
)

var (
	ErrInvalidOptions = errors.New("invalid query options")
	ErrUnknownServer  = errors.New("unknown server")
	ErrDiscovery      = errors.New("cannot receive neighbours data")
	ErrAllNodesFailed = errors.New("request failed on every node")
)

const (
	neighboursPath = "neighbours"

	msgDiscoveryFailed = "Cannot receive neighbours data"
	msgRequestFailed   = "Request failed"
	msgCompleted       = "Request completed"
)

// Aggregator issues batches against the cluster. It is safe for concurrent
// use; overlapping batches never share state.
type Aggregator struct {
	client   *api.Client
	sess     *session.Session
	localURL string

	notifier notify.Notifier
	progress notify.Progress
	log      *slog.Logger
	metrics  *metrics.Query

	mu         sync.RWMutex
	selected   string
	neighbours model.NeighbourSet
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithNotifier sets the alert sink.
func WithNotifier(n notify.Notifier) Option {
	return func(a *Aggregator) { a.notifier = n }
}

// WithProgress sets the global progress indicator.
func WithProgress(p notify.Progress) Option {
	return func(a *Aggregator) { a.progress = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

// WithMetrics records batches on m.
func WithMetrics(m *metrics.Query) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// New creates an aggregator for the cluster reachable through localURL.
func New(client *api.Client, sess *session.Session, localURL string, opts ...Option) *Aggregator {
	a := &Aggregator{
		client:     client,
		sess:       sess,
		localURL:   localURL,
		notifier:   notify.Nop,
		progress:   notify.NopProgress{},
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		selected:   model.AllServers,
		neighbours: model.NeighbourSet{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LocalURL returns the base URL of the connected instance.
func (a *Aggregator) LocalURL() string {
	return a.localURL
}

// Selected returns the global server selection.
func (a *Aggregator) Selected() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.selected
}

// SetSelected changes the server used when Options.Server is empty.
func (a *Aggregator) SetSelected(name string) {
	if name == "" {
		name = model.AllServers
	}
	a.mu.Lock()
	a.selected = name
	a.mu.Unlock()
}

// Neighbours returns a copy of the last discovered neighbour set.
func (a *Aggregator) Neighbours() model.NeighbourSet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.neighbours.Clone()
}

// Reset forgets the neighbour cache and returns the selection to All SERVERS.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.selected = model.AllServers
	a.neighbours = model.NeighbourSet{}
	a.mu.Unlock()
}

// Query sends path to the nodes selected by o.Server and blocks until every
// node has completed. It returns the per-node statuses of the batch.
func (a *Aggregator) Query(ctx context.Context, path string, o Options) ([]model.NodeStatus, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidOptions)
	}
	p, err := encode(o)
	if err != nil {
		return nil, err
	}

	server := o.Server
	if server == "" {
		server = a.Selected()
	}

	var nodes []model.Node
	switch server {
	case model.AllServers:
		set, err := a.discover(ctx, o.Params.Quiet)
		if err != nil {
			return nil, err
		}
		nodes = set.Nodes()
	case model.LocalServer:
		nodes = []model.Node{{Name: model.LocalServer, Host: model.LocalServer}}
	default:
		a.mu.RLock()
		n, ok := a.neighbours[server]
		a.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownServer, server)
		}
		nodes = []model.Node{{Name: server, Host: n.Host, URL: n.URL}}
	}

	return a.run(ctx, path, o, p, nodes)
}

// discover refreshes the neighbour cache from the local node.
func (a *Aggregator) discover(ctx context.Context, quiet bool) (model.NeighbourSet, error) {
	resp, err := a.client.Do(ctx, api.Request{
		BaseURL: a.localURL,
		Path:    neighboursPath,
		Header:  http.Header{api.PasswordHeader: []string{a.sess.Password()}},
	}, nil)

	var set model.NeighbourSet
	if err == nil {
		if err = json.Unmarshal(resp.Body, &set); err != nil {
			err = fmt.Errorf("decode neighbours: %w", err)
		}
	}
	if err != nil {
		a.log.Warn("neighbours discovery failed", "error", err)
		a.notifier.Alert(notify.Error, alertText(model.LocalServer, msgDiscoveryFailed, err))
		if !quiet {
			a.progress.Done()
		}
		return nil, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}

	if len(set) == 0 {
		set = model.NeighbourSet{model.LocalServer: {Host: hostOf(a.localURL), URL: a.localURL}}
	}
	a.mu.Lock()
	a.neighbours = set
	a.mu.Unlock()
	return set.Clone(), nil
}

// batch is the state of one Query invocation. It is never shared.
type batch struct {
	id       string
	mu       sync.Mutex
	statuses []model.NodeStatus
	last     *api.Response
}

func (a *Aggregator) run(ctx context.Context, path string, o Options, p payload, nodes []model.Node) ([]model.NodeStatus, error) {
	b := &batch{id: uuid.NewString(), statuses: make([]model.NodeStatus, len(nodes))}
	for i, n := range nodes {
		b.statuses[i] = model.NewStatus(n)
	}
	started := time.Now()
	a.metrics.BatchStarted()

	header := http.Header{}
	header.Set(api.PasswordHeader, a.sess.Password())
	for k, v := range o.Headers {
		header.Set(k, v)
	}
	showProgress := path != neighboursPath && !o.Params.Quiet

	var wg sync.WaitGroup
	wg.Add(len(nodes))
	for i := range nodes {
		go func(i int) {
			defer wg.Done()
			a.queryNode(ctx, b, i, path, o, p, header, showProgress)
		}(i)
	}
	wg.Wait()

	statuses := append([]model.NodeStatus(nil), b.statuses...)
	ok := model.AnySucceeded(statuses)
	if ok {
		if o.Success != nil {
			o.Success(statuses, b.last)
		} else {
			a.notifier.Alert(notify.Success, msgCompleted)
		}
	} else {
		a.notifier.Alert(notify.Error, msgRequestFailed)
	}
	if o.Complete != nil {
		o.Complete()
	}
	if !o.Params.Quiet {
		a.progress.Done()
	}

	elapsed := time.Since(started)
	a.metrics.BatchDone(path, ok, elapsed)
	a.log.Info("batch done", "batch", b.id, "path", path, "nodes", len(nodes), "succeeded", succeeded(statuses), "duration", elapsed)

	if !ok {
		return statuses, ErrAllNodesFailed
	}
	return statuses, nil
}

func (a *Aggregator) queryNode(ctx context.Context, b *batch, i int, path string, o Options, p payload, header http.Header, showProgress bool) {
	b.mu.Lock()
	node := b.statuses[i].Node
	b.mu.Unlock()

	base := node.URL
	if base == "" {
		base = a.localURL
	}

	var onProgress api.ProgressFunc
	if showProgress {
		onProgress = func(loaded, total int64) {
			b.mu.Lock()
			b.statuses[i].PercentComplete = float64(loaded) / float64(total)
			var sum float64
			for _, s := range b.statuses {
				sum += s.PercentComplete
			}
			overall := sum / float64(len(b.statuses))
			b.mu.Unlock()
			a.progress.Set(overall)
		}
	}

	resp, err := a.client.Do(ctx, api.Request{
		BaseURL:     base,
		Path:        path,
		Method:      p.method,
		Query:       p.query,
		Header:      header.Clone(),
		Body:        p.body,
		ContentType: p.contentType,
	}, onProgress)
	if err == nil && len(resp.Body) > 0 && !json.Valid(resp.Body) {
		err = errors.New("parsererror")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	st := &b.statuses[i]
	st.Checked = true
	if resp != nil {
		b.last = resp
	}
	if err == nil {
		st.Status = true
		if len(resp.Body) > 0 {
			st.Data = json.RawMessage(resp.Body)
		}
	} else {
		st.Err = reason(err)
	}
	a.metrics.NodeDone(node.Name, path, err == nil)
	a.log.Debug("node done", "batch", b.id, "node", node.Name, "path", path, "ok", err == nil, "error", st.Err)

	if err != nil {
		switch {
		case o.Error != nil:
			o.Error(*st, err)
		case o.ErrorOnceID != "":
			if a.sess.MarkAlerted(o.ErrorOnceID + node.Name) {
				a.notifier.Alert(notify.Error, alertText(node.Name, o.ErrorMessage, err))
			}
		default:
			a.notifier.Alert(notify.Error, alertText(node.Name, o.ErrorMessage, err))
		}
	}
	if resp != nil {
		if h := o.StatusCode[resp.StatusCode]; h != nil {
			h(*st)
		}
	}
}

func alertText(node, message string, err error) string {
	if message == "" {
		message = msgRequestFailed
	}
	text := node + " > " + message
	if r := reason(err); r != "" {
		text += ": " + r
	}
	return text
}

// reason is the short failure text shown to the user: the HTTP status text,
// "timeout", or the transport error.
func reason(err error) string {
	var se *api.StatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return se.StatusText()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "abort"
	}
	return err.Error()
}

func succeeded(statuses []model.NodeStatus) int {
	n := 0
	for _, s := range statuses {
		if s.Status {
			n++
		}
	}
	return n
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return model.LocalServer
	}
	return u.Host
}
