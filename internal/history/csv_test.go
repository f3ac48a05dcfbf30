package history

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendCSV_WritesHeaderOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.csv")
	i1 := Item{UnixTime: 1, ID: "m1", Action: "reject", Symbols: []Symbol{{Name: "A"}, {Name: "B"}}}
	i2 := Item{UnixTime: 2, ID: "m2", Action: "no action"}

	if err := AppendCSV(path, []Item{i1}); err != nil {
		t.Fatalf("AppendCSV #1: %v", err)
	}
	if err := AppendCSV(path, []Item{i2}); err != nil {
		t.Fatalf("AppendCSV #2: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%d\n%s", len(lines), string(data))
	}
	if !strings.HasPrefix(lines[0], "time,") {
		t.Fatalf("header=%q", lines[0])
	}

	items, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(items) != 2 || items[0].ID != "m1" || len(items[0].Symbols) != 2 || items[1].UnixTime != 2 {
		t.Fatalf("items=%+v", items)
	}
	if items[0].Badge != BadgeDanger {
		t.Fatalf("badge=%s", items[0].Badge)
	}
}

func TestWriteCSV_QuotesFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteCSV(&buf, []Item{{Subject: "hello, world", Score: 1.5, RequiredScore: 15}}); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if !strings.Contains(buf.String(), `"hello, world"`) {
		t.Fatalf("csv=%q", buf.String())
	}
	if !strings.Contains(buf.String(), ",1.50,15,") {
		t.Fatalf("score columns: %q", buf.String())
	}
}

func TestReadCSV_RejectsShortRecord(t *testing.T) {
	t.Parallel()

	if _, err := readCSV(strings.NewReader("time,message_id\n1970-01-01T00:00:00Z,x\n")); err == nil {
		t.Fatalf("expected error")
	}
}
