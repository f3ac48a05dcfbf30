// Package selectors drives the selectors plugin of the management API:
// validating selector expressions, applying them to a message and listing
// the available extractors and transforms.
package selectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"mailctl/internal/api"
	"mailctl/internal/model"
	"mailctl/internal/notify"
	"mailctl/internal/query"
)

// ErrReadOnly is returned for operations refused in read-only mode.
var ErrReadOnly = errors.New("read-only mode")

const (
	msgProcessed  = "Message successfully processed"
	msgUnexpected = "Unexpected error processing message"
)

// Querier is the part of the aggregator the checker needs.
type Querier interface {
	Query(ctx context.Context, path string, o query.Options) ([]model.NodeStatus, error)
	Selected() string
}

// ReadOnlyFunc reports the current read-only flag.
type ReadOnlyFunc func() bool

// Entry is one extractor or transform.
type Entry struct {
	Name        string
	Description string
}

// Checker runs selector requests against the selected server.
type Checker struct {
	q        Querier
	readOnly ReadOnlyFunc
	notifier notify.Notifier
}

// NewChecker creates a checker. A nil notifier discards alerts.
func NewChecker(q Querier, readOnly ReadOnlyFunc, n notify.Notifier) *Checker {
	if n == nil {
		n = notify.Nop
	}
	if readOnly == nil {
		readOnly = func() bool { return false }
	}
	return &Checker{q: q, readOnly: readOnly, notifier: n}
}

// Server maps the All SERVERS selection to the local node; selector
// requests are answered by a single node.
func Server(selected string) string {
	if selected == "" || selected == model.AllServers {
		return model.LocalServer
	}
	return selected
}

func (c *Checker) server() string {
	return Server(c.q.Selected())
}

// CheckSelector reports whether selector is valid. An empty selector or
// read-only mode yields false without a request.
func (c *Checker) CheckSelector(ctx context.Context, selector string) (bool, error) {
	if selector == "" || c.readOnly() {
		return false, nil
	}
	var res api.SelectorCheck
	_, err := c.q.Query(ctx, "plugins/selectors/check_selector", query.Options{
		Method: "GET",
		Server: c.server(),
		Params: query.Params{Query: url.Values{"selector": {selector}}},
		Success: func(statuses []model.NodeStatus, _ *api.Response) {
			_ = json.Unmarshal(statuses[0].Data, &res)
		},
	})
	if err != nil {
		return false, err
	}
	return res.Success, nil
}

// CheckMessage applies selector to message and returns the extracted value.
func (c *Checker) CheckMessage(ctx context.Context, selector string, message []byte) (string, error) {
	if c.readOnly() {
		return "", ErrReadOnly
	}
	if len(strings.TrimSpace(string(message))) == 0 {
		return "", errors.New("empty message")
	}

	var (
		out string
		ok  bool
	)
	_, err := c.q.Query(ctx, "plugins/selectors/check_message", query.Options{
		Method: "POST",
		Data:   message,
		Server: c.server(),
		Params: query.Params{Query: url.Values{"selector": {selector}}},
		Success: func(statuses []model.NodeStatus, _ *api.Response) {
			var res api.SelectorCheck
			if json.Unmarshal(statuses[0].Data, &res) != nil || !res.Success {
				c.notifier.Alert(notify.Error, msgUnexpected)
				return
			}
			ok = true
			c.notifier.Alert(notify.Success, msgProcessed)
			out = dataText(res.Data)
		},
	})
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New(strings.ToLower(msgUnexpected))
	}
	return out, nil
}

// List returns the extractors or transforms known to the server, sorted by
// name.
func (c *Checker) List(ctx context.Context, kind string) ([]Entry, error) {
	if kind != "extractors" && kind != "transforms" {
		return nil, fmt.Errorf("unknown list %q", kind)
	}
	var entries []Entry
	var decodeErr error
	_, err := c.q.Query(ctx, "plugins/selectors/list_"+kind, query.Options{
		Method: "GET",
		Server: c.server(),
		Success: func(statuses []model.NodeStatus, _ *api.Response) {
			var m map[string]api.ListEntry
			if decodeErr = json.Unmarshal(statuses[0].Data, &m); decodeErr != nil {
				return
			}
			for name, e := range m {
				entries = append(entries, Entry{Name: name, Description: e.Description})
			}
		},
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, decodeErr)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// dataText renders the selector result the way it is shown in the result
// box: strings verbatim, lists comma-joined, anything else as JSON.
func dataText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) == nil {
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = dataText(item)
		}
		return strings.Join(parts, ",")
	}
	return string(raw)
}
