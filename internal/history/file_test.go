package history

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"live-subtitle-pipeline/internal/model"
)

func record(seq uint64, source, target string) model.HistoryRecord {
	return model.HistoryRecord{
		SequenceNo: seq,
		SourceText: source,
		TargetText: target,
		TargetLang: "es",
		Translated: true,
		LoggedAt:   time.Now().UTC(),
	}
}

func readRecords(t *testing.T, path string) []model.HistoryRecord {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open history file: %v", err)
	}
	defer f.Close()

	var out []model.HistoryRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec model.HistoryRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %d not valid JSON: %v", len(out)+1, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestFileSink_AppendsJSONLines(t *testing.T) {
	sink, err := NewFileSink(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	ctx := context.Background()
	for seq := uint64(1); seq <= 3; seq++ {
		if err := sink.Append(ctx, record(seq, "hello", "hola")); err != nil {
			t.Fatalf("append %d: %v", seq, err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recs := readRecords(t, sink.Path())
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i, rec := range recs {
		if rec.SequenceNo != uint64(i+1) {
			t.Errorf("line %d: sequenceNo = %d", i, rec.SequenceNo)
		}
		if rec.TargetText != "hola" {
			t.Errorf("line %d: targetText = %q", i, rec.TargetText)
		}
	}
}

func TestFileSink_NamesFileAfterRunTimestamp(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, 0)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer sink.Close()

	base := filepath.Base(sink.Path())
	if !strings.HasPrefix(base, "history_") || !strings.HasSuffix(base, ".log") {
		t.Errorf("unexpected history file name %q", base)
	}

	ts := strings.TrimSuffix(strings.TrimPrefix(base, "history_"), ".log")
	if _, err := time.Parse("2006-01-02_15-04-05", ts); err != nil {
		t.Errorf("file name timestamp %q does not parse: %v", ts, err)
	}
}

func TestFileSink_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "history")
	sink, err := NewFileSink(dir, 0)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer sink.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("history directory not created: %v", err)
	}
}

func TestFileSink_AppendAfterCloseFails(t *testing.T) {
	sink, err := NewFileSink(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
	if err := sink.Append(context.Background(), record(1, "a", "b")); err == nil {
		t.Error("expected append after close to fail")
	}
}
