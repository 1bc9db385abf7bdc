package resource

import (
	"context"
	"io"
)

type rateLimitedWriter struct {
	ctx context.Context
	w   io.Writer
	c   *Controller
}

// NewRateLimitedWriter returns a writer that charges every write against
// the IO budget of c before forwarding it to w.
func NewRateLimitedWriter(ctx context.Context, w io.Writer, c *Controller) io.Writer {
	return &rateLimitedWriter{ctx: ctx, w: w, c: c}
}

func (w *rateLimitedWriter) Write(p []byte) (int, error) {
	if err := w.c.AcquireIO(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.w.Write(p)
}

type rateLimitedReader struct {
	ctx context.Context
	r   io.Reader
	c   *Controller
}

// NewRateLimitedReader returns a reader that charges every read against
// the IO budget of c.
func NewRateLimitedReader(ctx context.Context, r io.Reader, c *Controller) io.Reader {
	return &rateLimitedReader{ctx: ctx, r: r, c: c}
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.c.AcquireIO(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
