package remote

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// DefaultMaxFrameSize bounds a single request or response body.
const DefaultMaxFrameSize = 64 << 20

// writeFrame writes content prefixed by its size as a little-endian uint32.
// The write can be cancelled via ctx.
func writeFrame(ctx context.Context, w io.Writer, content []byte) error {
	done := make(chan error, 1)
	go func() {
		size := uint32(len(content))
		if err := binary.Write(w, binary.LittleEndian, size); err != nil {
			done <- fmt.Errorf("failed to write frame size: %w", err)
			return
		}
		if _, err := w.Write(content); err != nil {
			done <- fmt.Errorf("failed to write frame content: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readFrame reads one size-prefixed frame. Frames larger than limit are
// rejected with ErrInvalidFrame before their content is read.
func readFrame(ctx context.Context, r io.Reader, limit uint32) ([]byte, error) {
	type result struct {
		content []byte
		err     error
	}
	done := make(chan result, 1)

	go func() {
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			done <- result{err: fmt.Errorf("failed to read frame size: %w", err)}
			return
		}
		if size > limit {
			done <- result{err: fmt.Errorf("%w: size %d exceeds %d", ErrInvalidFrame, size, limit)}
			return
		}

		content := make([]byte, size)
		if _, err := io.ReadFull(r, content); err != nil {
			done <- result{err: fmt.Errorf("failed to read frame content: %w", err)}
			return
		}
		done <- result{content: content}
	}()

	select {
	case res := <-done:
		return res.content, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
