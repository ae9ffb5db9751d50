package pipeio

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"
)

// fakeWriterTo lets Copy's WriterTo fast path be exercised directly.
type fakeWriterTo struct {
	data []byte
}

func (f *fakeWriterTo) Read(p []byte) (int, error) { return 0, io.EOF }

func (f *fakeWriterTo) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.data)
	return int64(n), err
}

func TestCopyPrefersWriterTo(t *testing.T) {
	src := &fakeWriterTo{data: []byte("hello")}
	var dst bytes.Buffer

	n, err := Copy(&dst, src)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if n != 5 || dst.String() != "hello" {
		t.Fatalf("Copy: got %d bytes, %q", n, dst.String())
	}
}

func TestCopyFallsBackToCopyBuffer(t *testing.T) {
	src := bytes.NewReader([]byte("plain bytes"))
	var dst bytes.Buffer

	// Hide bytes.Reader's WriteTo and bytes.Buffer's ReadFrom so Copy has to
	// take the io.CopyBuffer path.
	n, err := Copy(struct{ io.Writer }{&dst}, struct{ io.Reader }{src})
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if n != int64(len("plain bytes")) || dst.String() != "plain bytes" {
		t.Fatalf("Copy: got %d bytes, %q", n, dst.String())
	}
}

func TestPipeBridgesBothDirections(t *testing.T) {
	a1, a2 := net.Pipe()
	b1, b2 := net.Pipe()

	done := make(chan struct{})
	go func() {
		Pipe(a2, b2)
		close(done)
	}()

	if _, err := a1.Write([]byte("ping")); err != nil {
		t.Fatalf("write a1: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(b1, buf); err != nil {
		t.Fatalf("read b1: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("b1 got %q, want %q", buf, "ping")
	}

	if _, err := b1.Write([]byte("pong")); err != nil {
		t.Fatalf("write b1: %v", err)
	}
	if _, err := io.ReadFull(a1, buf); err != nil {
		t.Fatalf("read a1: %v", err)
	}
	if string(buf) != "pong" {
		t.Fatalf("a1 got %q, want %q", buf, "pong")
	}

	a1.Close()
	b1.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Pipe did not return after both ends closed")
	}
}
