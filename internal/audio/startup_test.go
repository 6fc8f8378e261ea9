//go:build linux && cgo

package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gen2brain/malgo"
)

func saveAndRestoreMalgoHooks(t *testing.T) {
	t.Helper()
	origInitContext := malgoInitContext
	origDefaultDeviceConfig := malgoDefaultDeviceConfig
	origInitDevice := malgoInitDevice
	origContextUninit := malgoContextUninit
	origDeviceStart := malgoDeviceStart
	origDeviceUninit := malgoDeviceUninit

	t.Cleanup(func() {
		malgoInitContext = origInitContext
		malgoDefaultDeviceConfig = origDefaultDeviceConfig
		malgoInitDevice = origInitDevice
		malgoContextUninit = origContextUninit
		malgoDeviceStart = origDeviceStart
		malgoDeviceUninit = origDeviceUninit
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func decodeInt16LE(buf []byte, idx int) int16 {
	return int16(binary.LittleEndian.Uint16(buf[idx*2:]))
}

func TestStartRecorderInitContextError(t *testing.T) {
	saveAndRestoreMalgoHooks(t)

	malgoInitContext = func([]malgo.Backend, malgo.ContextConfig, malgo.LogProc) (*malgo.AllocatedContext, error) {
		return nil, errors.New("boom")
	}

	rec, ch, err := StartRecorder(context.Background())
	if err == nil || !strings.Contains(err.Error(), "init malgo context") {
		t.Fatalf("error = %v, want init malgo context failure", err)
	}
	if rec != nil || ch != nil {
		t.Fatalf("expected nil recorder/channel, got recorder=%v channel=%v", rec, ch)
	}
}

func TestStartRecorderInitDeviceErrorUninitsContext(t *testing.T) {
	saveAndRestoreMalgoHooks(t)

	ctxUninitCalls := 0
	malgoInitContext = func([]malgo.Backend, malgo.ContextConfig, malgo.LogProc) (*malgo.AllocatedContext, error) {
		return &malgo.AllocatedContext{}, nil
	}
	malgoDefaultDeviceConfig = func(malgo.DeviceType) malgo.DeviceConfig {
		return malgo.DeviceConfig{}
	}
	malgoInitDevice = func(malgo.Context, malgo.DeviceConfig, malgo.DeviceCallbacks) (*malgo.Device, error) {
		return nil, errors.New("no device")
	}
	malgoContextUninit = func(*malgo.AllocatedContext) error {
		ctxUninitCalls++
		return nil
	}

	rec, ch, err := StartRecorder(context.Background())
	if err == nil || !strings.Contains(err.Error(), "init capture device") {
		t.Fatalf("error = %v, want init capture device failure", err)
	}
	if rec != nil || ch != nil {
		t.Fatalf("expected nil recorder/channel, got recorder=%v channel=%v", rec, ch)
	}
	if ctxUninitCalls != 1 {
		t.Fatalf("context uninit calls = %d, want 1", ctxUninitCalls)
	}
}

func TestStartRecorderStartErrorUninitsDeviceAndContext(t *testing.T) {
	saveAndRestoreMalgoHooks(t)

	ctxUninitCalls := 0
	deviceUninitCalls := 0
	malgoInitContext = func([]malgo.Backend, malgo.ContextConfig, malgo.LogProc) (*malgo.AllocatedContext, error) {
		return &malgo.AllocatedContext{}, nil
	}
	malgoDefaultDeviceConfig = func(malgo.DeviceType) malgo.DeviceConfig {
		return malgo.DeviceConfig{}
	}
	malgoInitDevice = func(malgo.Context, malgo.DeviceConfig, malgo.DeviceCallbacks) (*malgo.Device, error) {
		return &malgo.Device{}, nil
	}
	malgoDeviceStart = func(*malgo.Device) error {
		return errors.New("start failed")
	}
	malgoDeviceUninit = func(*malgo.Device) {
		deviceUninitCalls++
	}
	malgoContextUninit = func(*malgo.AllocatedContext) error {
		ctxUninitCalls++
		return nil
	}

	rec, ch, err := StartRecorder(context.Background())
	if err == nil || !strings.Contains(err.Error(), "start capture") {
		t.Fatalf("error = %v, want start capture failure", err)
	}
	if rec != nil || ch != nil {
		t.Fatalf("expected nil recorder/channel, got recorder=%v channel=%v", rec, ch)
	}
	if deviceUninitCalls != 1 || ctxUninitCalls != 1 {
		t.Fatalf("uninit calls device=%d ctx=%d, want 1 each", deviceUninitCalls, ctxUninitCalls)
	}
}

func TestStartRecorderConvertsSamplesAndClosesChannel(t *testing.T) {
	saveAndRestoreMalgoHooks(t)

	ctxUninitCalls := 0
	deviceUninitCalls := 0
	var callbacks malgo.DeviceCallbacks

	malgoInitContext = func([]malgo.Backend, malgo.ContextConfig, malgo.LogProc) (*malgo.AllocatedContext, error) {
		return &malgo.AllocatedContext{}, nil
	}
	malgoDefaultDeviceConfig = func(malgo.DeviceType) malgo.DeviceConfig {
		return malgo.DeviceConfig{}
	}
	malgoInitDevice = func(_ malgo.Context, cfg malgo.DeviceConfig, cb malgo.DeviceCallbacks) (*malgo.Device, error) {
		if cfg.Capture.Channels != Channels {
			t.Fatalf("capture channels = %d, want %d", cfg.Capture.Channels, Channels)
		}
		if cfg.SampleRate != SampleRate {
			t.Fatalf("sample rate = %d, want %d", cfg.SampleRate, SampleRate)
		}
		if cfg.Capture.Format != malgo.FormatS16 {
			t.Fatalf("capture format = %v, want %v", cfg.Capture.Format, malgo.FormatS16)
		}
		callbacks = cb
		return &malgo.Device{}, nil
	}
	malgoDeviceStart = func(*malgo.Device) error { return nil }
	malgoDeviceUninit = func(*malgo.Device) { deviceUninitCalls++ }
	malgoContextUninit = func(*malgo.AllocatedContext) error {
		ctxUninitCalls++
		return nil
	}

	rec, ch, err := StartRecorder(context.Background())
	if err != nil {
		t.Fatalf("StartRecorder() error: %v", err)
	}
	if callbacks.Data == nil {
		t.Fatal("expected data callback to be set")
	}

	callbacks.Data(nil, []byte{1, 0, 255, 127}, 0)
	got := <-ch
	if len(got) != 2 || got[0] != 1 || got[1] != 32767 {
		t.Fatalf("decoded samples = %#v, want [1 32767]", got)
	}

	callbacks.Data(nil, nil, 0)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected samples for empty input: %#v", extra)
	default:
	}

	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, open := <-ch; open {
		t.Fatal("channel should be closed after Close")
	}
	if deviceUninitCalls != 1 || ctxUninitCalls != 1 {
		t.Fatalf("uninit calls device=%d ctx=%d, want 1 each", deviceUninitCalls, ctxUninitCalls)
	}

	// Close is idempotent.
	if err := rec.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if deviceUninitCalls != 1 || ctxUninitCalls != 1 {
		t.Fatalf("close should be idempotent; got device=%d ctx=%d", deviceUninitCalls, ctxUninitCalls)
	}
}

func TestStartRecorderClosesOnContextCancel(t *testing.T) {
	saveAndRestoreMalgoHooks(t)

	deviceUninitCalls := 0
	malgoInitContext = func([]malgo.Backend, malgo.ContextConfig, malgo.LogProc) (*malgo.AllocatedContext, error) {
		return &malgo.AllocatedContext{}, nil
	}
	malgoDefaultDeviceConfig = func(malgo.DeviceType) malgo.DeviceConfig {
		return malgo.DeviceConfig{}
	}
	malgoInitDevice = func(malgo.Context, malgo.DeviceConfig, malgo.DeviceCallbacks) (*malgo.Device, error) {
		return &malgo.Device{}, nil
	}
	malgoDeviceStart = func(*malgo.Device) error { return nil }
	malgoDeviceUninit = func(*malgo.Device) { deviceUninitCalls++ }
	malgoContextUninit = func(*malgo.AllocatedContext) error { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	_, ch, err := StartRecorder(ctx)
	if err != nil {
		t.Fatalf("StartRecorder() error: %v", err)
	}

	cancel()
	waitFor(t, 200*time.Millisecond, func() bool { return deviceUninitCalls == 1 })
	if _, open := <-ch; open {
		t.Fatal("channel should be closed after cancel")
	}
}

func TestStartPlayerInitContextError(t *testing.T) {
	saveAndRestoreMalgoHooks(t)

	malgoInitContext = func([]malgo.Backend, malgo.ContextConfig, malgo.LogProc) (*malgo.AllocatedContext, error) {
		return nil, errors.New("boom")
	}

	p, err := StartPlayer(context.Background())
	if err == nil || !strings.Contains(err.Error(), "init malgo context") {
		t.Fatalf("error = %v, want init malgo context failure", err)
	}
	if p != nil {
		t.Fatalf("expected nil player, got %v", p)
	}
}

func TestStartPlayerInitDeviceErrorUninitsContext(t *testing.T) {
	saveAndRestoreMalgoHooks(t)

	ctxUninitCalls := 0
	malgoInitContext = func([]malgo.Backend, malgo.ContextConfig, malgo.LogProc) (*malgo.AllocatedContext, error) {
		return &malgo.AllocatedContext{}, nil
	}
	malgoDefaultDeviceConfig = func(malgo.DeviceType) malgo.DeviceConfig {
		return malgo.DeviceConfig{}
	}
	malgoInitDevice = func(malgo.Context, malgo.DeviceConfig, malgo.DeviceCallbacks) (*malgo.Device, error) {
		return nil, errors.New("no output")
	}
	malgoContextUninit = func(*malgo.AllocatedContext) error {
		ctxUninitCalls++
		return nil
	}

	p, err := StartPlayer(context.Background())
	if err == nil || !strings.Contains(err.Error(), "init playback device") {
		t.Fatalf("error = %v, want init playback device failure", err)
	}
	if p != nil {
		t.Fatalf("expected nil player, got %v", p)
	}
	if ctxUninitCalls != 1 {
		t.Fatalf("context uninit calls = %d, want 1", ctxUninitCalls)
	}
}

func TestStartPlayerFillsOutputAndDrains(t *testing.T) {
	saveAndRestoreMalgoHooks(t)

	var callbacks malgo.DeviceCallbacks
	malgoInitContext = func([]malgo.Backend, malgo.ContextConfig, malgo.LogProc) (*malgo.AllocatedContext, error) {
		return &malgo.AllocatedContext{}, nil
	}
	malgoDefaultDeviceConfig = func(malgo.DeviceType) malgo.DeviceConfig {
		return malgo.DeviceConfig{}
	}
	malgoInitDevice = func(_ malgo.Context, cfg malgo.DeviceConfig, cb malgo.DeviceCallbacks) (*malgo.Device, error) {
		if cfg.Playback.Channels != Channels {
			t.Fatalf("playback channels = %d, want %d", cfg.Playback.Channels, Channels)
		}
		if cfg.Playback.Format != malgo.FormatS16 {
			t.Fatalf("playback format = %v, want %v", cfg.Playback.Format, malgo.FormatS16)
		}
		callbacks = cb
		return &malgo.Device{}, nil
	}
	malgoDeviceStart = func(*malgo.Device) error { return nil }
	malgoDeviceUninit = func(*malgo.Device) {}
	malgoContextUninit = func(*malgo.AllocatedContext) error { return nil }

	p, err := StartPlayer(context.Background())
	if err != nil {
		t.Fatalf("StartPlayer() error: %v", err)
	}
	defer p.Close()
	if callbacks.Data == nil {
		t.Fatal("expected playback callback to be set")
	}

	p.Write([]int16{7, 8})
	out := make([]byte, 6)
	callbacks.Data(out, nil, 0)
	if got := decodeInt16LE(out, 0); got != 7 {
		t.Fatalf("sample0 = %d, want 7", got)
	}
	if got := decodeInt16LE(out, 1); got != 8 {
		t.Fatalf("sample1 = %d, want 8", got)
	}
	if got := decodeInt16LE(out, 2); got != 0 {
		t.Fatalf("sample2 = %d, want 0 padding", got)
	}

	// The buffer is empty now, so Drain returns immediately.
	if err := p.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error: %v", err)
	}
}

func TestPlayerDrainHonorsContext(t *testing.T) {
	saveAndRestoreMalgoHooks(t)

	malgoInitContext = func([]malgo.Backend, malgo.ContextConfig, malgo.LogProc) (*malgo.AllocatedContext, error) {
		return &malgo.AllocatedContext{}, nil
	}
	malgoDefaultDeviceConfig = func(malgo.DeviceType) malgo.DeviceConfig {
		return malgo.DeviceConfig{}
	}
	malgoInitDevice = func(malgo.Context, malgo.DeviceConfig, malgo.DeviceCallbacks) (*malgo.Device, error) {
		return &malgo.Device{}, nil
	}
	malgoDeviceStart = func(*malgo.Device) error { return nil }
	malgoDeviceUninit = func(*malgo.Device) {}
	malgoContextUninit = func(*malgo.AllocatedContext) error { return nil }

	p, err := StartPlayer(context.Background())
	if err != nil {
		t.Fatalf("StartPlayer() error: %v", err)
	}
	defer p.Close()

	// Nothing consumes the buffer, so Drain can only end via the context.
	p.Write([]int16{1, 2, 3})
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	if err := p.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain() = %v, want deadline exceeded", err)
	}
}
