//go:build !portaudio

// Package portaudio is the hardware audio backend. Without the portaudio
// build tag it registers as unavailable.
package portaudio

import (
	"errors"

	"github.com/chriscow/livetranslate-go/pkg/audio"
)

// ErrUnavailable is returned when the binary was built without PortAudio.
var ErrUnavailable = errors.New("portaudio backend not available (build with -tags=portaudio)")

func init() {
	audio.RegisterUnavailable("portaudio", "System microphone and speaker (disabled - build with -tags=portaudio to enable)",
		func(opts audio.Options) (audio.Device, error) {
			return nil, ErrUnavailable
		})
}

// Devices reports that device enumeration needs PortAudio.
func Devices() (inputs, outputs []string, err error) {
	return nil, nil, ErrUnavailable
}
