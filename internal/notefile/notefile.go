//go:build linux && cgo

// Package notefile reads and writes memo files: opus frames in an OGG
// container, 48 kHz mono, one encoded frame per page.
package notefile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"github.com/alecdray/talkie/internal/audio"
)

const (
	frameSize     = 960 // 20ms at 48kHz
	frameDuration = 20 * time.Millisecond
	opusMaxBytes  = 4000

	// maxDecodedFrame fits the largest legal opus frame (120ms).
	maxDecodedFrame = 5760

	rtpPayloadType = 111
)

var ErrNoAudio = errors.New("no audio captured")

// Write encodes captured PCM frames into an OGG opus file at path and
// reports the recorded duration. It consumes frames until the channel
// closes. A recording that produced no complete frame is an error and
// leaves no file behind.
func Write(path string, frames <-chan []int16) (time.Duration, error) {
	encoder, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppVoIP)
	if err != nil {
		return 0, fmt.Errorf("opus encoder: %w", err)
	}

	ogg, err := oggwriter.New(path, audio.SampleRate, audio.Channels)
	if err != nil {
		return 0, fmt.Errorf("ogg writer: %w", err)
	}

	var (
		buf     = make([]int16, 0, frameSize*4)
		packet  = make([]byte, opusMaxBytes)
		seq     uint16
		ts      uint32
		written int
	)

	writeFrame := func(frame []int16) error {
		n, err := encoder.Encode(frame, packet)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}
		seq++
		ts += frameSize
		err = ogg.WriteRTP(&rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    rtpPayloadType,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           1,
			},
			Payload: packet[:n],
		})
		if err != nil {
			return fmt.Errorf("ogg write: %w", err)
		}
		written++
		return nil
	}

	fail := func(err error) (time.Duration, error) {
		_ = ogg.Close()
		_ = os.Remove(path)
		return 0, err
	}

	for samples := range frames {
		buf = append(buf, samples...)
		for len(buf) >= frameSize {
			frame := buf[:frameSize]
			buf = buf[frameSize:]
			if err := writeFrame(frame); err != nil {
				return fail(err)
			}
		}
	}

	// Pad the trailing partial frame with silence instead of cutting
	// the memo short.
	if len(buf) > 0 {
		frame := make([]int16, frameSize)
		copy(frame, buf)
		if err := writeFrame(frame); err != nil {
			return fail(err)
		}
	}

	if err := ogg.Close(); err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("ogg close: %w", err)
	}
	if written == 0 {
		_ = os.Remove(path)
		return 0, ErrNoAudio
	}
	return time.Duration(written) * frameDuration, nil
}

// Read decodes the memo at path back into PCM frames.
func Read(path string) ([][]int16, time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open memo: %w", err)
	}
	defer f.Close()

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		return nil, 0, fmt.Errorf("ogg reader: %w", err)
	}

	decoder, err := opus.NewDecoder(audio.SampleRate, audio.Channels)
	if err != nil {
		return nil, 0, fmt.Errorf("opus decoder: %w", err)
	}

	var (
		frames [][]int16
		total  int
	)
	for {
		payload, _, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("ogg page: %w", err)
		}
		// Skip the header pages; only audio packets get decoded.
		if len(payload) == 0 || bytes.HasPrefix(payload, []byte("OpusHead")) || bytes.HasPrefix(payload, []byte("OpusTags")) {
			continue
		}

		pcm := make([]int16, maxDecodedFrame*audio.Channels)
		n, err := decoder.Decode(payload, pcm)
		if err != nil {
			return nil, 0, fmt.Errorf("opus decode: %w", err)
		}
		frames = append(frames, pcm[:n*audio.Channels])
		total += n
	}

	if len(frames) == 0 {
		return nil, 0, ErrNoAudio
	}
	dur := time.Duration(total) * time.Second / audio.SampleRate
	return frames, dur, nil
}
