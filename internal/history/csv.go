package history

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

var csvHeader = []string{
	"time",
	"message_id",
	"queue_id",
	"ip",
	"user",
	"action",
	"score",
	"required_score",
	"time_real",
	"size",
	"sender",
	"rcpt",
	"subject",
	"symbols",
}

// WriteCSV writes items to CSV with a fixed column order.
func WriteCSV(w io.Writer, items []Item) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	return writeRecords(writer, items)
}

// AppendCSV appends items to path, writing the header only when the file
// is new or empty.
func AppendCSV(path string, items []Item) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	writer := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := writer.Write(csvHeader); err != nil {
			return err
		}
	}
	return writeRecords(writer, items)
}

func writeRecords(writer *csv.Writer, items []Item) error {
	for _, it := range items {
		names := make([]string, len(it.Symbols))
		for i, s := range it.Symbols {
			names[i] = s.Name
		}
		record := []string{
			unixTime(it.UnixTime).Format(time.RFC3339Nano),
			it.ID,
			it.QueueID,
			it.IP,
			it.User,
			it.Action,
			strconv.FormatFloat(it.Score, 'f', 2, 64),
			jsNumber(it.RequiredScore),
			it.TimeRealText(),
			strconv.FormatInt(it.Size, 10),
			it.Sender,
			it.Rcpt,
			it.Subject,
			strings.Join(names, ";"),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCSV loads items previously exported with WriteCSV or AppendCSV.
func ReadCSV(path string) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return readCSV(file)
}

func readCSV(r io.Reader) ([]Item, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	start := 0
	if len(records[0]) > 0 && records[0][0] == csvHeader[0] {
		start = 1
	}

	items := make([]Item, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		rec := records[i]
		if len(rec) < len(csvHeader) {
			return nil, fmt.Errorf("invalid record at line %d", i+1)
		}
		ts, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			return nil, fmt.Errorf("invalid time at line %d: %w", i+1, err)
		}
		score, _ := strconv.ParseFloat(rec[6], 64)
		required, _ := strconv.ParseFloat(rec[7], 64)
		timeReal, _ := strconv.ParseFloat(rec[8], 64)
		size, _ := strconv.ParseInt(rec[9], 10, 64)

		var symbols []Symbol
		if rec[13] != "" {
			for _, name := range strings.Split(rec[13], ";") {
				symbols = append(symbols, Symbol{Name: name})
			}
		}
		items = append(items, Item{
			UnixTime:      float64(ts.UnixNano()) / 1e9,
			ID:            rec[1],
			QueueID:       rec[2],
			IP:            rec[3],
			User:          rec[4],
			Action:        rec[5],
			Badge:         ActionBadge(rec[5]),
			Score:         score,
			RequiredScore: required,
			TimeReal:      timeReal,
			Size:          size,
			Sender:        rec[10],
			Rcpt:          rec[11],
			Subject:       rec[12],
			Symbols:       symbols,
		})
	}
	return items, nil
}
