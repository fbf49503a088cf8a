package cascade

import (
	"encoding/binary"
	"time"

	"github.com/chriscow/livetranslate-go/pkg/media"
)

// SegmentEvent is reported by Segmenter.Process.
type SegmentEvent int

const (
	SegmentNone SegmentEvent = iota
	SpeechStarted
	SpeechEnded
)

// SegmenterOptions configures the energy endpointer.
type SegmenterOptions struct {
	MinSpeech     time.Duration // speech needed before an utterance starts
	MinSilence    time.Duration // silence that ends an utterance
	PrefixPadding time.Duration // audio kept from before the speech onset
	MaxUtterance  time.Duration // utterances are cut at this length
	EnergyFloor   float64       // minimum mean-square energy treated as speech
}

// DefaultSegmenterOptions returns options tuned for 16 kHz speech.
func DefaultSegmenterOptions() SegmenterOptions {
	return SegmenterOptions{
		MinSpeech:     100 * time.Millisecond,
		MinSilence:    600 * time.Millisecond,
		PrefixPadding: 300 * time.Millisecond,
		MaxUtterance:  15 * time.Second,
		EnergyFloor:   1e5,
	}
}

const noiseHistorySize = 50

// Segmenter splits a stream of 16-bit PCM chunks into utterances using frame
// energy against an adaptive noise estimate. It is not safe for concurrent use.
type Segmenter struct {
	opts SegmenterOptions

	speaking   bool
	speechRun  time.Duration
	silenceRun time.Duration

	prefix    []byte
	utterance []byte
	format    media.Format

	noise []float64
}

// NewSegmenter creates a segmenter.
func NewSegmenter(opts SegmenterOptions) *Segmenter {
	return &Segmenter{opts: opts, noise: make([]float64, 0, noiseHistorySize)}
}

// Speaking reports whether an utterance is in progress.
func (s *Segmenter) Speaking() bool {
	return s.speaking
}

// Process consumes one chunk. SpeechEnded is returned together with the
// complete utterance, including the padding captured before the onset.
func (s *Segmenter) Process(chunk media.Chunk) (SegmentEvent, []byte) {
	if chunk.IsEmpty() {
		return SegmentNone, nil
	}
	s.format = chunk.Format

	energy := meanSquare(chunk.Data)
	speech := energy > s.threshold()
	if !speech {
		s.observeNoise(energy)
	}
	dur := chunk.Duration()

	if !s.speaking {
		s.keepPrefix(chunk.Data)
		if speech {
			s.speechRun += dur
		} else {
			s.speechRun = 0
		}
		if s.speechRun < s.opts.MinSpeech {
			return SegmentNone, nil
		}
		s.speaking = true
		s.silenceRun = 0
		s.utterance = append(s.utterance[:0], s.prefix...)
		s.prefix = s.prefix[:0]
		return SpeechStarted, nil
	}

	s.utterance = append(s.utterance, chunk.Data...)
	if speech {
		s.silenceRun = 0
	} else {
		s.silenceRun += dur
	}

	if s.silenceRun >= s.opts.MinSilence || s.format.Duration(len(s.utterance)) >= s.opts.MaxUtterance {
		out := make([]byte, len(s.utterance))
		copy(out, s.utterance)
		s.reset()
		return SpeechEnded, out
	}
	return SegmentNone, nil
}

func (s *Segmenter) reset() {
	s.speaking = false
	s.speechRun = 0
	s.silenceRun = 0
	s.utterance = s.utterance[:0]
	s.prefix = s.prefix[:0]
}

// keepPrefix retains the most recent audio before an onset.
func (s *Segmenter) keepPrefix(data []byte) {
	s.prefix = append(s.prefix, data...)

	bpf := s.format.BytesPerFrame()
	if bpf == 0 || s.format.SampleRate == 0 {
		return
	}
	keep := s.opts.PrefixPadding + s.opts.MinSpeech
	limit := int(keep.Seconds()*float64(s.format.SampleRate)) * bpf
	if limit < len(data) {
		limit = len(data)
	}
	if over := len(s.prefix) - limit; over > 0 {
		s.prefix = append(s.prefix[:0], s.prefix[over:]...)
	}
}

// threshold is twice the average noise energy, never below the floor.
func (s *Segmenter) threshold() float64 {
	if len(s.noise) < 10 {
		return s.opts.EnergyFloor
	}
	var sum float64
	for _, e := range s.noise {
		sum += e
	}
	return max(s.opts.EnergyFloor, 2*sum/float64(len(s.noise)))
}

func (s *Segmenter) observeNoise(energy float64) {
	if len(s.noise) == noiseHistorySize {
		copy(s.noise, s.noise[1:])
		s.noise = s.noise[:noiseHistorySize-1]
	}
	s.noise = append(s.noise, energy)
}

// meanSquare returns the mean square of little-endian 16-bit samples.
func meanSquare(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(data[i*2:])))
		sum += v * v
	}
	return sum / float64(n)
}
