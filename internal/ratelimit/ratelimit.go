// Package ratelimit throttles data connection throughput with a token
// bucket from golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxChunk bounds a single read or write so a wait never covers more than
// one chunk of data.
const maxChunk = 32 * 1024

// Limiter limits transfers to a number of bytes per second, allowing a
// burst of one second worth of data.
type Limiter struct {
	bucket *rate.Limiter
	chunk  int
}

// New returns a limiter for bytesPerSecond, or nil for no limit.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := int(min(bytesPerSecond, int64(1<<30)))
	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		chunk:  min(burst, maxChunk),
	}
}

// wait blocks until n bytes may pass. n never exceeds l.chunk.
func (l *Limiter) wait(n int) error {
	return l.bucket.WaitN(context.Background(), n)
}

type reader struct {
	r       io.Reader
	limiter *Limiter
}

// NewReader throttles reads from r. A nil limiter returns r unchanged.
func NewReader(r io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &reader{r: r, limiter: limiter}
}

func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) > r.limiter.chunk {
		p = p[:r.limiter.chunk]
	}
	if err := r.limiter.wait(len(p)); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

type writer struct {
	w       io.Writer
	limiter *Limiter
}

// NewWriter throttles writes to w. A nil limiter returns w unchanged.
func NewWriter(w io.Writer, limiter *Limiter) io.Writer {
	if limiter == nil {
		return w
	}
	return &writer{w: w, limiter: limiter}
}

func (w *writer) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n := min(len(p)-written, w.limiter.chunk)
		if err := w.limiter.wait(n); err != nil {
			return written, err
		}
		m, err := w.w.Write(p[written : written+n])
		written += m
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
