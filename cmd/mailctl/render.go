package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"mailctl/internal/api"
	"mailctl/internal/dashboard"
	"mailctl/internal/history"
	"mailctl/internal/model"
	"mailctl/internal/settings"
	"mailctl/internal/timer"
)

var badgeColor = map[history.Badge]func(string, ...interface{}) string{
	history.BadgeSuccess: color.GreenString,
	history.BadgeWarning: color.YellowString,
	history.BadgeDanger:  color.RedString,
	history.BadgeInfo:    color.CyanString,
}

// termRenderer prints views as plain text blocks.
type termRenderer struct {
	settings *settings.Settings

	mu        sync.Mutex
	out       io.Writer
	countdown string
}

func newTermRenderer(out io.Writer, s *settings.Settings) *termRenderer {
	return &termRenderer{out: out, settings: s, countdown: timer.NoSchedule}
}

func (r *termRenderer) setCountdown(text string) {
	r.mu.Lock()
	r.countdown = text
	r.mu.Unlock()
}

func (r *termRenderer) Render(view dashboard.View, part string, statuses []model.NodeStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "== %s/%s  %s  next %s ==\n", view, part, time.Now().Format(time.TimeOnly), r.countdown)
	for _, s := range statuses {
		if !s.Status {
			fmt.Fprintf(r.out, "%s: %s\n", s.Name, color.RedString("failed: %s", s.Err))
			continue
		}
		switch part {
		case "stat":
			renderStat(r.out, s)
		case "history":
			r.renderHistory(s)
		case "errors":
			r.renderErrors(s)
		case "extractors", "transforms":
			renderList(r.out, s)
		default:
			printStatus(r.out, s)
		}
	}
}

func (r *termRenderer) Servers(list []dashboard.Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = strings.TrimSpace(serverLine(s))
	}
	fmt.Fprintf(r.out, "servers: %s\n", strings.Join(names, ", "))
}

func (r *termRenderer) ReadOnly(on bool) {
	if !on {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, color.YellowString("read-only mode"))
}

func renderStat(w io.Writer, s model.NodeStatus) {
	var st api.Stat
	if err := json.Unmarshal(s.Data, &st); err != nil {
		printStatus(w, s)
		return
	}
	fmt.Fprintf(w, "%s: version=%s uptime=%s scanned=%d spam=%d ham=%d learned=%d connections=%d\n",
		s.Name, st.Version, (time.Duration(st.Uptime) * time.Second).String(),
		st.Scanned, st.SpamCount, st.HamCount, st.Learned, st.Connections)
	actions := make([]string, 0, len(st.Actions))
	for a := range st.Actions {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	for _, a := range actions {
		fmt.Fprintf(w, "  %-16s %d\n", a, st.Actions[a])
	}
}

func (r *termRenderer) renderHistory(s model.NodeStatus) {
	rows, err := history.DecodeRows(s.Data)
	if err != nil {
		fmt.Fprintf(r.out, "%s: %v\n", s.Name, err)
		return
	}
	items := history.Process(rows, history.ProcessOptions{
		Table:  history.TableHistory,
		Order:  history.OrderMagnitude,
		Format: r.settings.FormatUnix,
	})
	fmt.Fprintf(r.out, "%s:\n", s.Name)
	printItems(r.out, items, r.settings.PageSize(history.TableHistory))
}

func (r *termRenderer) renderErrors(s model.NodeStatus) {
	var entries []api.ErrorEntry
	if err := json.Unmarshal(s.Data, &entries); err != nil {
		fmt.Fprintf(r.out, "%s: %v\n", s.Name, err)
		return
	}
	rows := history.ProcessErrors(entries, r.settings.FormatUnix)
	if n := r.settings.PageSize("errors"); len(rows) > n {
		rows = rows[:n]
	}
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s errors\tTYPE\tPID\tMODULE\tMESSAGE\n", s.Name)
	for _, e := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", e.Time, e.Type, e.PID, e.Module, e.Message)
	}
	_ = tw.Flush()
}

func renderList(w io.Writer, s model.NodeStatus) {
	var m map[string]api.ListEntry
	if err := json.Unmarshal(s.Data, &m); err != nil {
		printStatus(w, s)
		return
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-24s %s\n", name, m[name].Description)
	}
}

// printStatus prints one node result with its data indented.
func printStatus(w io.Writer, s model.NodeStatus) {
	if !s.Status {
		fmt.Fprintf(w, "%s: failed: %s\n", s.Name, s.Err)
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, s.Data, "  ", "  "); err != nil {
		buf.Reset()
		buf.Write(s.Data)
	}
	fmt.Fprintf(w, "%s: ok\n  %s\n", s.Name, buf.String())
}

func printItems(w io.Writer, items []history.Item, limit int) {
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tSCORE\tSENDER\tRCPT\tSUBJECT\tSCAN")
	for _, it := range items {
		paint := badgeColor[it.Badge]
		if paint == nil {
			paint = color.WhiteString
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%ss\n",
			it.Time, paint("%s", it.Action), it.ScoreText(), it.Sender, it.RcptShort, it.Subject, it.TimeRealText())
	}
	_ = tw.Flush()
}

func printSummary(w io.Writer, s history.Summary) {
	if s.Count == 0 {
		fmt.Fprintln(w, "no messages in window")
		return
	}
	fmt.Fprintf(w, "messages=%d from=%s to=%s\n", s.Count, s.From.Format(time.RFC3339), s.To.Format(time.RFC3339))
	fmt.Fprintf(w, "score avg=%.2f min=%.2f max=%.2f passed=%d rejected=%d\n", s.AvgScore, s.MinScore, s.MaxScore, s.PassedCount, s.Rejected)
	fmt.Fprintf(w, "scan avg=%.2fms p95=%.2fms\n", s.AvgScanMs, s.P95ScanMs)
	actions := make([]string, 0, len(s.Actions))
	for a := range s.Actions {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	for _, a := range actions {
		fmt.Fprintf(w, "  %-16s %d\n", a, s.Actions[a])
	}
}
