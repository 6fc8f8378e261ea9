//go:build !linux || !cgo

package audio

import (
	"context"
	"fmt"
)

const (
	SampleRate = 48000
	Channels   = 1
)

type Recorder struct{}

type Player struct{}

func StartRecorder(context.Context) (*Recorder, <-chan []int16, error) {
	return nil, nil, fmt.Errorf("audio capture is supported on linux only")
}

func (r *Recorder) Close() error {
	return nil
}

func StartPlayer(context.Context) (*Player, error) {
	return nil, fmt.Errorf("audio playback is supported on linux only")
}

func (p *Player) Write([]int16) {}

func (p *Player) Drain(context.Context) error {
	return nil
}

func (p *Player) Close() error {
	return nil
}
