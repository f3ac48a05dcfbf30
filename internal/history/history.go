// Package history turns history and scan rows returned by the API into
// display items, summarizes them and exports them as CSV.
package history

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"mailctl/internal/api"
)

// Tables whose rows go through Process.
const (
	TableHistory = "history"
	TableScan    = "scan"
)

// rcptLimit is the number of recipients shown before eliding.
const rcptLimit = 3

// Order selects how symbols of a row are sorted.
type Order string

const (
	OrderMagnitude Order = "magnitude"
	OrderName      Order = "name"
	OrderScore     Order = "score"
)

// ParseOrder validates a symbol order name. Empty means magnitude.
func ParseOrder(s string) (Order, error) {
	switch o := Order(s); o {
	case "":
		return OrderMagnitude, nil
	case OrderMagnitude, OrderName, OrderScore:
		return o, nil
	}
	return "", fmt.Errorf("unknown symbol order %q", s)
}

// Badge classifies an action for display.
type Badge string

const (
	BadgeSuccess Badge = "success"
	BadgeWarning Badge = "warning"
	BadgeDanger  Badge = "danger"
	BadgeInfo    Badge = "info"
)

// ActionBadge maps a scan action to its badge.
func ActionBadge(action string) Badge {
	switch action {
	case "clean", "no action":
		return BadgeSuccess
	case "rewrite subject", "add header", "probable spam":
		return BadgeWarning
	case "spam", "reject":
		return BadgeDanger
	}
	return BadgeInfo
}

// Symbol is a rule hit ready for display.
type Symbol struct {
	Name        string
	Description string
	Score       float64
	Options     []string
}

// Class returns the highlight class of the symbol.
func (s Symbol) Class() string {
	switch {
	case s.Name == "GREYLIST":
		return "special"
	case s.Score < 0:
		return "negative"
	case s.Score > 0:
		return "positive"
	}
	return ""
}

func (s Symbol) String() string {
	out := s.Name + " (" + jsNumber(s.Score) + ")"
	if len(s.Options) > 0 {
		out += " [" + strings.Join(s.Options, ",") + "]"
	}
	return out
}

// Item is one processed history or scan row.
type Item struct {
	ID            string
	QueueID       string
	IP            string
	User          string
	Action        string
	Badge         Badge
	Score         float64
	RequiredScore float64
	Symbols       []Symbol
	UnixTime      float64
	Time          string
	TimeReal      float64
	Size          int64
	Sender        string
	Rcpt          string
	RcptShort     string
	Subject       string
}

// Passed reports whether the score stayed below the required score.
func (it Item) Passed() bool {
	return it.Score < it.RequiredScore
}

// ScoreText renders "score / required".
func (it Item) ScoreText() string {
	return strconv.FormatFloat(it.Score, 'f', 2, 64) + " / " + jsNumber(it.RequiredScore)
}

// TimeRealText renders the scan time with millisecond precision.
func (it Item) TimeRealText() string {
	return strconv.FormatFloat(it.TimeReal, 'f', 3, 64)
}

// SymbolsText joins the ordered symbols one per line.
func (it Item) SymbolsText() string {
	parts := make([]string, len(it.Symbols))
	for i, s := range it.Symbols {
		parts[i] = s.String()
	}
	return strings.Join(parts, "\n")
}

// DecodeRows accepts the versioned history payload or a bare row list.
func DecodeRows(raw json.RawMessage) ([]api.HistoryRow, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var rows []api.HistoryRow
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("decode history rows: %w", err)
		}
		return rows, nil
	}
	var v2 api.HistoryV2
	if err := json.Unmarshal(raw, &v2); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if v2.Version != 0 && v2.Version != 2 {
		return nil, fmt.Errorf("unsupported history version %d", v2.Version)
	}
	return v2.Rows, nil
}

// ProcessOptions configures Process.
type ProcessOptions struct {
	Table  string
	Order  Order
	Format func(unix float64) string
	Now    func() time.Time
}

// Process converts rows into items. Scan rows are stamped with the current
// time; history rows get merged sender and recipient columns.
func Process(rows []api.HistoryRow, opts ProcessOptions) []Item {
	if opts.Format == nil {
		opts.Format = func(ts float64) string {
			return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		it := Item{
			ID:            row.MessageID,
			QueueID:       row.QueueID,
			IP:            row.IP,
			User:          row.User,
			Action:        row.Action,
			Badge:         ActionBadge(row.Action),
			Score:         row.Score,
			RequiredScore: row.RequiredScore,
			Symbols:       symbolsOf(row.Symbols),
			UnixTime:      row.UnixTime,
			TimeReal:      row.TimeReal,
			Size:          row.Size,
			Sender:        row.SenderMIME,
			Subject:       row.Subject,
		}
		SortSymbols(it.Symbols, opts.Order)

		if opts.Table == TableScan {
			it.UnixTime = float64(opts.Now().UnixMilli()) / 1000
		}
		it.Time = opts.Format(it.UnixTime)

		if opts.Table == TableHistory {
			switch {
			case len(row.RcptMIME) == 0:
				it.Rcpt, it.RcptShort = formatRcpt(row.RcptSMTP, nil)
			case !sameSet(row.RcptMIME, row.RcptSMTP):
				it.Rcpt, it.RcptShort = formatRcpt(row.RcptSMTP, row.RcptMIME)
			default:
				it.Rcpt, it.RcptShort = formatRcpt(nil, row.RcptMIME)
			}
			if row.SenderMIME != row.SenderSMTP {
				it.Sender = "[" + row.SenderSMTP + "] " + row.SenderMIME
			}
		}
		items = append(items, it)
	}
	return items
}

func symbolsOf(m map[string]*api.Symbol) []Symbol {
	out := make([]Symbol, 0, len(m))
	for key, s := range m {
		if s == nil {
			continue
		}
		name := s.Name
		if name == "" {
			name = key
		}
		out = append(out, Symbol{Name: name, Description: s.Description, Score: s.Score, Options: s.Options})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SortSymbols orders syms in place: magnitude by absolute score descending,
// name by collation order, score descending.
func SortSymbols(syms []Symbol, order Order) {
	switch order {
	case OrderName:
		c := collate.New(language.Und)
		sort.SliceStable(syms, func(i, j int) bool {
			return c.CompareString(syms[i].Name, syms[j].Name) < 0
		})
	case OrderScore:
		sort.SliceStable(syms, func(i, j int) bool { return syms[i].Score > syms[j].Score })
	default:
		sort.SliceStable(syms, func(i, j int) bool {
			return math.Abs(syms[i].Score) > math.Abs(syms[j].Score)
		})
	}
}

// formatRcpt renders the full and shortened recipient columns. A nil list
// is omitted; SMTP recipients are bracketed.
func formatRcpt(smtp, mime []string) (full, short string) {
	if smtp != nil {
		full = "[" + strings.Join(smtp, ", ") + "] "
		short = "[" + strings.Join(head(smtp), ",") + more(smtp) + "]"
		if mime != nil {
			full += " "
			short += " "
		}
	}
	if mime != nil {
		full += strings.Join(mime, ", ")
		short += strings.Join(head(mime), ",") + more(mime)
	}
	return full, short
}

func head(list []string) []string {
	if len(list) > rcptLimit {
		return list[:rcptLimit]
	}
	return list
}

func more(list []string) string {
	if len(list) > rcptLimit {
		return fmt.Sprintf(" … (%d)", len(list))
	}
	return ""
}

func sameSet(a, b []string) bool {
	in := func(x string, list []string) bool {
		for _, y := range list {
			if x == y {
				return true
			}
		}
		return false
	}
	for _, x := range a {
		if !in(x, b) {
			return false
		}
	}
	for _, x := range b {
		if !in(x, a) {
			return false
		}
	}
	return true
}

// jsNumber formats f the shortest way, without a trailing ".0".
func jsNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ErrorRow is one processed entry of the errors table.
type ErrorRow struct {
	Time    string
	Type    string
	PID     int
	Module  string
	ID      string
	Message string
}

// ProcessErrors formats the errors route entries, newest first.
func ProcessErrors(entries []api.ErrorEntry, format func(float64) string) []ErrorRow {
	sorted := append([]api.ErrorEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp > sorted[j].Timestamp })

	rows := make([]ErrorRow, len(sorted))
	for i, e := range sorted {
		ts := strconv.FormatFloat(e.Timestamp, 'f', -1, 64)
		if format != nil {
			ts = format(e.Timestamp)
		}
		rows[i] = ErrorRow{Time: ts, Type: e.Type, PID: e.PID, Module: e.Module, ID: e.ID, Message: e.Message}
	}
	return rows
}
