package metrics

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCountersSnapshotMatchesHeader(t *testing.T) {
	c := &Counters{}
	c.PacketsSent.Store(1)
	c.BytesSent.Store(42)

	header := c.Header()
	snap := c.Snapshot()
	if len(header) != len(snap) {
		t.Fatalf("Header/Snapshot length mismatch: %d vs %d", len(header), len(snap))
	}
	if snap[0] != "1" {
		t.Fatalf("PacketsSent snapshot = %q, want %q", snap[0], "1")
	}
	if snap[2] != "42" {
		t.Fatalf("BytesSent snapshot = %q, want %q", snap[2], "42")
	}
}

func TestLogWritesHeaderAndRow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.csv")

	c := &Counters{}
	c.ChannelsOpened.Store(3)

	logOnce(path, c)
	logOnce(path, c)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 3 {
		t.Fatalf("expected 1 header + 2 data rows, got %d lines: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "ChannelsOpened") {
		t.Fatalf("header row missing ChannelsOpened: %q", lines[0])
	}
	if !strings.Contains(lines[1], "3") {
		t.Fatalf("data row missing counter value: %q", lines[1])
	}
}

func TestLogStopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.csv")
	c := &Counters{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Log(ctx, path, 10*time.Millisecond, c)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Log did not return after context cancellation")
	}
}

func TestLogNoopWithoutPath(t *testing.T) {
	c := &Counters{}
	done := make(chan struct{})
	go func() {
		Log(context.Background(), "", time.Second, c)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Log with empty path should return immediately")
	}
}
