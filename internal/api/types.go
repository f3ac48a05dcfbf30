package api

import "encoding/json"

// AuthData is the payload of the auth route.
type AuthData struct {
	Auth     string `json:"auth"`
	ReadOnly bool   `json:"read_only"`
}

// Stat is the subset of the stat route the console renders.
type Stat struct {
	ReadOnly           bool             `json:"read_only"`
	Scanned            int64            `json:"scanned"`
	Learned            int64            `json:"learned"`
	SpamCount          int64            `json:"spam_count"`
	HamCount           int64            `json:"ham_count"`
	Connections        int64            `json:"connections"`
	ControlConnections int64            `json:"control_connections"`
	Uptime             int64            `json:"uptime"`
	Version            string           `json:"version"`
	Actions            map[string]int64 `json:"actions"`
}

// SelectorCheck is returned by the selectors plugin check routes.
type SelectorCheck struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ListEntry describes one selector extractor or transform.
type ListEntry struct {
	Description string `json:"description"`
}

// HistoryV2 is the history route payload.
type HistoryV2 struct {
	Version int          `json:"version"`
	Rows    []HistoryRow `json:"rows"`
}

// HistoryRow is one scanned message.
type HistoryRow struct {
	MessageID     string             `json:"message-id"`
	QueueID       string             `json:"qid"`
	IP            string             `json:"ip"`
	Action        string             `json:"action"`
	Score         float64            `json:"score"`
	RequiredScore float64            `json:"required_score"`
	Symbols       map[string]*Symbol `json:"symbols"`
	UnixTime      float64            `json:"unix_time"`
	TimeReal      float64            `json:"time_real"`
	Size          int64              `json:"size"`
	User          string             `json:"user"`
	SenderSMTP    string             `json:"sender_smtp"`
	SenderMIME    string             `json:"sender_mime"`
	RcptSMTP      []string           `json:"rcpt_smtp"`
	RcptMIME      []string           `json:"rcpt_mime"`
	Subject       string             `json:"subject"`
}

// Symbol is a rule hit on a scanned message.
type Symbol struct {
	Name        string   `json:"name"`
	Score       float64  `json:"score"`
	MetricScore float64  `json:"metric_score"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
}

// ErrorEntry is one row of the errors route.
type ErrorEntry struct {
	Timestamp float64 `json:"ts"`
	Type      string  `json:"type"`
	PID       int     `json:"pid"`
	Module    string  `json:"module"`
	ID        string  `json:"id"`
	Message   string  `json:"message"`
}
