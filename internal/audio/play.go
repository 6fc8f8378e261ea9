//go:build linux && cgo

package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// Player owns the playback device for one memo. Unlike a live stream,
// memo playback buffers the whole note and drains to the end, so the
// buffer is unbounded and nothing is ever dropped.
type Player struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu        sync.Mutex
	buf       []int16
	closeOnce sync.Once
}

func StartPlayer(ctx context.Context) (*Player, error) {
	config := malgo.ContextConfig{}
	malgoCtx, err := malgoInitContext(nil, config, nil)
	if err != nil {
		return nil, fmt.Errorf("init malgo context: %w", err)
	}

	deviceConfig := malgoDefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = Channels
	deviceConfig.SampleRate = SampleRate

	player := &Player{ctx: malgoCtx}

	callback := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			player.fillOutput(output)
		},
	}

	device, err := malgoInitDevice(malgoCtx.Context, deviceConfig, callback)
	if err != nil {
		malgoContextUninit(malgoCtx)
		return nil, fmt.Errorf("init playback device: %w", err)
	}
	if err := malgoDeviceStart(device); err != nil {
		malgoDeviceUninit(device)
		malgoContextUninit(malgoCtx)
		return nil, fmt.Errorf("start playback: %w", err)
	}

	player.device = device
	go func() {
		<-ctx.Done()
		_ = player.Close()
	}()

	return player, nil
}

func (p *Player) Write(samples []int16) {
	if p == nil || len(samples) == 0 {
		return
	}
	p.mu.Lock()
	p.buf = append(p.buf, samples...)
	p.mu.Unlock()
}

// Drain blocks until the buffered audio has been played out or the
// context is done.
func (p *Player) Drain(ctx context.Context) error {
	if p == nil {
		return nil
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		remaining := len(p.buf)
		p.mu.Unlock()
		if remaining == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Player) fillOutput(output []byte) {
	if p == nil || len(output) == 0 {
		return
	}
	sampleCount := len(output) / 2
	p.mu.Lock()
	available := len(p.buf)
	use := sampleCount
	if available < use {
		use = available
	}
	for i := 0; i < use; i++ {
		binary.LittleEndian.PutUint16(output[i*2:], uint16(p.buf[i]))
	}
	for i := use; i < sampleCount; i++ {
		binary.LittleEndian.PutUint16(output[i*2:], 0)
	}
	if use > 0 {
		copy(p.buf, p.buf[use:])
		p.buf = p.buf[:available-use]
	}
	p.mu.Unlock()
}

func (p *Player) Close() error {
	if p == nil {
		return nil
	}
	p.closeOnce.Do(func() {
		if p.device != nil {
			malgoDeviceUninit(p.device)
			p.device = nil
		}
		if p.ctx != nil {
			malgoContextUninit(p.ctx)
			p.ctx = nil
		}
	})
	return nil
}
