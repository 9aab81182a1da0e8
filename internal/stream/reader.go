// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"io"
)

// readBufferSize is the size of the chunk buffer used when draining a
// response body. Chunks are arbitrary fragments; alignment does not matter.
const readBufferSize = 4096

// Process drains r through a fresh decoder, invoking fn for every event in
// wire order. It returns once a done or error event has been observed, the
// stream ends, the context is cancelled, or the read fails. Stream EOF
// without a done event is normal completion.
func Process(ctx context.Context, r io.Reader, fn func(Event)) error {
	return NewDecoder().Drain(ctx, r, fn)
}

// Drain feeds r through d until the decoder stops or the stream ends,
// invoking fn for every event. Callers that need the decoder's skip count
// afterwards use this instead of Process.
func (d *Decoder) Drain(ctx context.Context, r io.Reader, fn func(Event)) error {
	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			for _, ev := range d.Feed(string(buf[:n])) {
				fn(ev)
			}
			if d.Done() {
				return nil
			}
		}
		if err != nil {
			if err == io.EOF {
				for _, ev := range d.Close() {
					fn(ev)
				}
				return nil
			}
			return err
		}
	}
}
