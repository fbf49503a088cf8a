package portaudio

import (
	"context"
	"encoding/binary"
)

// blockWriter packs 16-bit samples into fixed-size device buffers. Samples
// that do not fill a buffer are held for the next Write or a Flush.
type blockWriter struct {
	buf   []int16
	held  int
	write func() error
}

// Write decodes data into the buffer, calling write for every full buffer.
func (b *blockWriter) Write(ctx context.Context, data []byte) error {
	for len(data) >= 2 {
		n := copy16(b.buf[b.held:], data)
		b.held += n
		data = data[n*2:]
		if b.held < len(b.buf) {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		b.held = 0
		if err := b.write(); err != nil {
			return err
		}
	}
	return nil
}

// Flush pads held samples with silence and writes them.
func (b *blockWriter) Flush(ctx context.Context) error {
	if b.held == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	clear(b.buf[b.held:])
	b.held = 0
	return b.write()
}

// copy16 decodes little-endian samples from src into dst and returns the count.
func copy16(dst []int16, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(src[i*2:]))
	}
	return n
}
