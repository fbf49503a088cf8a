// Package wav reads and writes 16-bit PCM RIFF/WAVE files.
package wav

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chriscow/livetranslate-go/pkg/media"
)

// Header represents a WAV file header
type Header struct {
	ChunkSize     uint32
	SampleRate    uint32
	NumChannels   uint16
	BitsPerSample uint16
	DataSize      uint32
}

// Format converts the header to a media format.
func (h Header) Format() media.Format {
	return media.Format{
		SampleRate:    int(h.SampleRate),
		Channels:      int(h.NumChannels),
		BitsPerSample: int(h.BitsPerSample),
	}
}

// Reader streams PCM data out of a WAV file.
type Reader struct {
	closer io.Closer
	src    *bufio.Reader
	data   io.Reader
	header Header
}

// Open opens a WAV file for reading.
func Open(filename string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	reader, err := NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	reader.closer = file
	return reader, nil
}

// NewReader parses the WAV header from r and positions the reader at the
// start of the audio data.
func NewReader(r io.Reader) (*Reader, error) {
	reader := &Reader{src: bufio.NewReader(r)}
	if err := reader.readHeader(); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}
	reader.data = io.LimitReader(reader.src, int64(reader.header.DataSize))
	return reader, nil
}

// Header returns the WAV file header information
func (r *Reader) Header() Header {
	return r.header
}

// Format returns the PCM format of the audio data.
func (r *Reader) Format() media.Format {
	return r.header.Format()
}

// Read reads raw PCM bytes. It returns io.EOF at the end of the data chunk.
func (r *Reader) Read(p []byte) (int, error) {
	return r.data.Read(p)
}

// ReadChunk reads the next chunk of frames sample frames. The final chunk of
// the file is padded with silence. io.EOF is returned when no data is left.
func (r *Reader) ReadChunk(frames int) (media.Chunk, error) {
	format := r.Format()
	buf := make([]byte, frames*format.BytesPerFrame())

	n, err := io.ReadFull(r.data, buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return media.Chunk{}, err
	}
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return media.Chunk{}, fmt.Errorf("failed to read audio data: %w", err)
	}
	// buf is zeroed, so a short read leaves silence in the tail
	return media.NewChunk(buf, format), nil
}

// Close closes the underlying file when the reader owns one.
func (r *Reader) Close() error {
	if r.closer != nil {
		err := r.closer.Close()
		r.closer = nil
		return err
	}
	return nil
}

// readHeader reads and validates the WAV file header
func (r *Reader) readHeader() error {
	var riffHeader [12]byte
	if _, err := io.ReadFull(r.src, riffHeader[:]); err != nil {
		return fmt.Errorf("failed to read RIFF header: %w", err)
	}

	if string(riffHeader[0:4]) != "RIFF" {
		return fmt.Errorf("not a valid RIFF file")
	}
	if string(riffHeader[8:12]) != "WAVE" {
		return fmt.Errorf("not a valid WAVE file")
	}

	r.header.ChunkSize = binary.LittleEndian.Uint32(riffHeader[4:8])

	size, err := r.seekChunk("fmt ")
	if err != nil {
		return err
	}
	if err := r.readFmt(size); err != nil {
		return err
	}

	size, err = r.seekChunk("data")
	if err != nil {
		return err
	}
	r.header.DataSize = size

	if r.header.BitsPerSample != 16 {
		return fmt.Errorf("only 16-bit samples are supported, got %d-bit", r.header.BitsPerSample)
	}
	return r.Format().Validate()
}

// seekChunk skips chunks until id is found and returns its size.
func (r *Reader) seekChunk(id string) (uint32, error) {
	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r.src, chunkHeader[:]); err != nil {
			return 0, fmt.Errorf("failed to find %q chunk: %w", id, err)
		}

		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])
		if chunkID == id {
			return chunkSize, nil
		}

		// chunks are word aligned
		skip := int64(chunkSize) + int64(chunkSize&1)
		if _, err := io.CopyN(io.Discard, r.src, skip); err != nil {
			return 0, fmt.Errorf("failed to skip %q chunk: %w", chunkID, err)
		}
	}
}

func (r *Reader) readFmt(size uint32) error {
	if size < 16 {
		return fmt.Errorf("fmt chunk too small: %d bytes", size)
	}

	var fmtData [16]byte
	if _, err := io.ReadFull(r.src, fmtData[:]); err != nil {
		return fmt.Errorf("failed to read fmt data: %w", err)
	}

	audioFormat := binary.LittleEndian.Uint16(fmtData[0:2])
	if audioFormat != 1 {
		return fmt.Errorf("only PCM format is supported, got format %d", audioFormat)
	}

	r.header.NumChannels = binary.LittleEndian.Uint16(fmtData[2:4])
	r.header.SampleRate = binary.LittleEndian.Uint32(fmtData[4:8])
	r.header.BitsPerSample = binary.LittleEndian.Uint16(fmtData[14:16])

	if extra := int64(size) - 16 + int64(size&1); extra > 0 {
		if _, err := io.CopyN(io.Discard, r.src, extra); err != nil {
			return fmt.Errorf("failed to skip fmt data: %w", err)
		}
	}
	return nil
}
