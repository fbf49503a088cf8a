package wavfile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/chriscow/livetranslate-go/pkg/audio"
	"github.com/chriscow/livetranslate-go/pkg/audio/wav"
	"github.com/chriscow/livetranslate-go/pkg/media"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func writeInput(t *testing.T, format media.Format, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	w, err := wav.Create(path, format)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCapture_ReadsFileThenSilence(t *testing.T) {
	is := is.New(t)
	in := writeInput(t, media.PCM16kMono, []byte{1, 0, 2, 0, 3, 0})

	dev := New(audio.Options{Input: in})
	dev.sleep = noSleep

	cfg := audio.StreamConfig{SampleRate: 16000, Channels: 1, FrameSize: 2}
	stream, err := dev.OpenCapture(cfg)
	is.NoErr(err)
	defer stream.Close()

	ctx := context.Background()
	want := [][]byte{
		{1, 0, 2, 0},
		{3, 0, 0, 0}, // padded tail
		{0, 0, 0, 0}, // silence after EOF
		{0, 0, 0, 0},
	}
	for _, w := range want {
		c, err := stream.Read(ctx)
		is.NoErr(err)
		is.Equal(c.Data, w)
		is.Equal(c.Format, media.PCM16kMono)
	}
}

func TestCapture_FormatMismatch(t *testing.T) {
	in := writeInput(t, media.PCM24kMono, []byte{0, 0})
	dev := New(audio.Options{Input: in})

	_, err := dev.OpenCapture(audio.StreamConfig{SampleRate: 16000, Channels: 1, FrameSize: 512})
	if !audio.IsFault(err) {
		t.Fatalf("expected fault on format mismatch, got %v", err)
	}
}

func TestCapture_RequiresInput(t *testing.T) {
	_, err := New(audio.Options{}).OpenCapture(audio.StreamConfig{SampleRate: 16000, Channels: 1, FrameSize: 512})
	if !audio.IsFault(err) {
		t.Fatalf("expected fault without input file, got %v", err)
	}
}

func TestCapture_CloseUnblocksRead(t *testing.T) {
	in := writeInput(t, media.PCM16kMono, make([]byte, 64))
	dev := New(audio.Options{Input: in})
	dev.sleep = func(ctx context.Context, d time.Duration) error {
		<-ctx.Done()
		return ctx.Err()
	}

	stream, err := dev.OpenCapture(audio.StreamConfig{SampleRate: 16000, Channels: 1, FrameSize: 4})
	if err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := stream.Read(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	stream.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, audio.ErrClosed) {
			t.Errorf("expected closed error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Read")
	}
}

func TestPlayback_RecordsToFile(t *testing.T) {
	is := is.New(t)
	out := filepath.Join(t.TempDir(), "out.wav")

	dev := New(audio.Options{Output: out})
	dev.sleep = noSleep

	stream, err := dev.OpenPlayback(audio.StreamConfig{SampleRate: 24000, Channels: 1, FrameSize: 512})
	is.NoErr(err)

	ctx := context.Background()
	is.NoErr(stream.Write(ctx, media.NewChunk([]byte{1, 0, 2, 0}, media.PCM24kMono)))
	is.NoErr(stream.Write(ctx, media.NewChunk([]byte{3, 0}, media.PCM24kMono)))
	is.True(stream.Write(ctx, media.NewChunk([]byte{9, 9}, media.PCM16kMono)) != nil) // wrong rate
	is.NoErr(stream.Close())

	err = stream.Write(ctx, media.NewChunk([]byte{4, 0}, media.PCM24kMono))
	is.True(audio.IsFault(err)) // write after close

	r, err := wav.Open(out)
	is.NoErr(err)
	defer r.Close()
	c, err := r.ReadChunk(3)
	is.NoErr(err)
	is.Equal(c.Data, []byte{1, 0, 2, 0, 3, 0})
}

func TestBackendRegistered(t *testing.T) {
	dev, err := audio.Open("wav", audio.Options{})
	if err != nil {
		t.Fatalf("Open(wav) error = %v", err)
	}
	if _, ok := dev.(*Device); !ok {
		t.Errorf("Open(wav) returned %T", dev)
	}
}
