package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/matryer/is"

	"github.com/chriscow/livetranslate-go/pkg/media"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "out.wav")

	w, err := Create(path, media.PCM24kMono)
	is.NoErr(err)
	is.NoErr(w.WriteChunk(media.NewChunk([]byte{1, 0, 2, 0, 3, 0}, media.PCM24kMono)))
	is.NoErr(w.WriteChunk(media.NewChunk([]byte{4, 0}, media.PCM24kMono)))
	is.Equal(w.BytesWritten(), 8)
	is.NoErr(w.Close())
	is.NoErr(w.Close()) // second close is a no-op

	r, err := Open(path)
	is.NoErr(err)
	defer r.Close()

	is.Equal(r.Format(), media.PCM24kMono)
	is.Equal(r.Header().DataSize, uint32(8))
	is.Equal(r.Header().ChunkSize, uint32(36+8))

	c, err := r.ReadChunk(3)
	is.NoErr(err)
	is.Equal(c.Data, []byte{1, 0, 2, 0, 3, 0})

	c, err = r.ReadChunk(3)
	is.NoErr(err)
	is.Equal(c.Data, []byte{4, 0, 0, 0, 0, 0}) // final chunk padded with silence

	_, err = r.ReadChunk(3)
	is.True(errors.Is(err, io.EOF))
}

func TestWriterRejectsMismatchedChunk(t *testing.T) {
	is := is.New(t)
	w, err := Create(filepath.Join(t.TempDir(), "out.wav"), media.PCM24kMono)
	is.NoErr(err)
	defer w.Close()

	err = w.WriteChunk(media.NewChunk([]byte{0, 0}, media.PCM16kMono))
	is.True(err != nil)
}

func TestReaderSkipsUnknownChunks(t *testing.T) {
	is := is.New(t)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.WriteString("WAVE")
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0}) // odd chunk plus pad byte
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint32(32000))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(4))
	buf.Write([]byte{9, 0, 8, 0})
	buf.Write([]byte{7, 7}) // trailing bytes outside the data chunk

	r, err := NewReader(&buf)
	is.NoErr(err)
	is.Equal(r.Format(), media.PCM16kMono)

	data, err := io.ReadAll(r)
	is.NoErr(err)
	is.Equal(data, []byte{9, 0, 8, 0})
}

func TestReaderRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("RIFX\x00\x00\x00\x00WAVE")},
		{"not wave", []byte("RIFF\x00\x00\x00\x00AVI ")},
		{"no fmt", []byte("RIFF\x00\x00\x00\x00WAVE")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewReader(bytes.NewReader(tt.data)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestEncode(t *testing.T) {
	is := is.New(t)

	data, err := Encode([]byte{1, 0, 2, 0}, media.PCM16kMono)
	is.NoErr(err)
	is.Equal(len(data), headerSize+4)

	r, err := NewReader(bytes.NewReader(data))
	is.NoErr(err)
	is.Equal(r.Format(), media.PCM16kMono)
	is.Equal(r.Header().ChunkSize, uint32(40))

	pcm, err := io.ReadAll(r)
	is.NoErr(err)
	is.Equal(pcm, []byte{1, 0, 2, 0})
}
