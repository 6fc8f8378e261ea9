//go:build linux && cgo

package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

const (
	SampleRate = 48000
	Channels   = 1
)

// Recorder owns the capture device for the duration of one memo.
type Recorder struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	closeOnce sync.Once
	frames    chan []int16
}

// StartRecorder opens the default microphone and streams S16 mono
// frames until Close. The channel is buffered generously; a consumer
// that stalls for more than a few seconds loses frames.
func StartRecorder(ctx context.Context) (*Recorder, <-chan []int16, error) {
	config := malgo.ContextConfig{}
	malgoCtx, err := malgoInitContext(nil, config, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("init malgo context: %w", err)
	}

	deviceConfig := malgoDefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = Channels
	deviceConfig.SampleRate = SampleRate

	rec := &Recorder{ctx: malgoCtx, frames: make(chan []int16, 256)}

	callback := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if len(input) == 0 {
				return
			}
			samples := make([]int16, len(input)/2)
			for i := 0; i < len(samples); i++ {
				samples[i] = int16(binary.LittleEndian.Uint16(input[i*2:]))
			}
			select {
			case rec.frames <- samples:
			default:
			}
		},
	}

	device, err := malgoInitDevice(malgoCtx.Context, deviceConfig, callback)
	if err != nil {
		malgoContextUninit(malgoCtx)
		return nil, nil, fmt.Errorf("init capture device: %w", err)
	}
	if err := malgoDeviceStart(device); err != nil {
		malgoDeviceUninit(device)
		malgoContextUninit(malgoCtx)
		return nil, nil, fmt.Errorf("start capture: %w", err)
	}

	rec.device = device
	go func() {
		<-ctx.Done()
		_ = rec.Close()
	}()

	return rec, rec.frames, nil
}

// Close stops the device and closes the frame channel, letting a
// consumer drain what was already captured.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.closeOnce.Do(func() {
		if r.device != nil {
			malgoDeviceUninit(r.device)
			r.device = nil
		}
		if r.ctx != nil {
			malgoContextUninit(r.ctx)
			r.ctx = nil
		}
		close(r.frames)
	})
	return nil
}
