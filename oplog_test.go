package soundftp

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestOperationLog(t *testing.T) {
	t.Parallel()
	l := NewOperationLog()
	clock := time.Date(2025, 3, 15, 9, 5, 7, 250*int(time.Millisecond), time.UTC)
	l.now = func() time.Time { return clock }

	e := l.Record("Connect to 127.0.0.1:21 succeeded")
	if got, want := e.String(), "09:05:07.250 Connect to 127.0.0.1:21 succeeded"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	l.Record("Disconnect")

	entries := l.Entries()
	if len(entries) != 2 || l.Len() != 2 {
		t.Fatalf("got %d entries (Len %d), want 2", len(entries), l.Len())
	}
	entries[0].Message = "changed"
	if l.Entries()[0].Message == "changed" {
		t.Error("Entries returned the internal slice")
	}

	var buf bytes.Buffer
	n, err := l.WriteTo(&buf)
	if err != nil {
		t.Fatal(err)
	}
	want := "09:05:07.250 Connect to 127.0.0.1:21 succeeded\n09:05:07.250 Disconnect\n"
	if buf.String() != want || n != int64(len(want)) {
		t.Errorf("WriteTo wrote %d bytes %q, want %q", n, buf.String(), want)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestOperationLog_WriteToError(t *testing.T) {
	t.Parallel()
	l := NewOperationLog()
	l.Record("a")
	if _, err := l.WriteTo(failingWriter{}); err == nil {
		t.Error("expected the writer error")
	}
	if _, err := NewOperationLog().WriteTo(failingWriter{}); err != nil {
		t.Errorf("empty log: %v", err)
	}
}

func TestOperationLog_Concurrent(t *testing.T) {
	t.Parallel()
	l := NewOperationLog()
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				l.Record("x")
				_ = l.Entries()
			}
		}()
	}
	wg.Wait()
	if l.Len() != 1600 {
		t.Errorf("Len = %d, want 1600", l.Len())
	}
}
