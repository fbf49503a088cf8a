package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/chriscow/livetranslate-go/pkg/media"
)

const headerSize = 44

// Writer writes PCM audio to a WAV file. The RIFF and data sizes are patched
// into the header on Close.
type Writer struct {
	file         *os.File
	format       media.Format
	bytesWritten uint32
}

// Create creates a WAV file for audio in the given format.
func Create(filename string, format media.Format) (*Writer, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create WAV file: %w", err)
	}

	writer := &Writer{file: file, format: format}
	if err := writeHeader(file, format, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	return writer, nil
}

// Format returns the format the file was created with.
func (w *Writer) Format() media.Format {
	return w.format
}

// Write appends raw PCM bytes.
func (w *Writer) Write(p []byte) (int, error) {
	if w.file == nil {
		return 0, os.ErrClosed
	}
	n, err := w.file.Write(p)
	w.bytesWritten += uint32(n)
	return n, err
}

// WriteChunk appends a chunk. Its format must match the file.
func (w *Writer) WriteChunk(chunk media.Chunk) error {
	if chunk.Format != w.format {
		return fmt.Errorf("chunk format %+v does not match file format %+v", chunk.Format, w.format)
	}
	_, err := w.Write(chunk.Data)
	return err
}

// BytesWritten returns the number of PCM bytes written so far.
func (w *Writer) BytesWritten() int {
	return int(w.bytesWritten)
}

// Close finalizes the WAV file by updating the header with correct sizes
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}

	dataSize := w.bytesWritten
	if _, err := w.file.Seek(4, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to chunk size: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, dataSize+headerSize-8); err != nil {
		return fmt.Errorf("failed to write chunk size: %w", err)
	}

	if _, err := w.file.Seek(headerSize-4, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to data size: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, dataSize); err != nil {
		return fmt.Errorf("failed to write data size: %w", err)
	}

	err := w.file.Close()
	w.file = nil
	return err
}

// Encode wraps raw PCM in a complete in-memory WAV file.
func Encode(pcm []byte, format media.Format) ([]byte, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(headerSize + len(pcm))
	if err := writeHeader(&buf, format, uint32(len(pcm))); err != nil {
		return nil, err
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// writeHeader writes a canonical 44-byte header. Sizes are zero while a file
// is still being written and are patched in Close.
func writeHeader(w io.Writer, format media.Format, dataSize uint32) error {
	channels := uint16(format.Channels)
	bits := uint16(format.BitsPerSample)
	rate := uint32(format.SampleRate)

	riffSize := uint32(0)
	if dataSize > 0 {
		riffSize = dataSize + headerSize - 8
	}

	fields := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		riffSize,
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(1), // PCM
		channels,
		rate,
		rate * uint32(channels) * uint32(bits) / 8, // byte rate
		channels * bits / 8,                        // block align
		bits,
		[4]byte{'d', 'a', 't', 'a'},
		dataSize,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}
