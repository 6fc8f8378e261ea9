//go:build !linux || !cgo

package notefile

import (
	"errors"
	"time"
)

var ErrNoAudio = errors.New("no audio captured")

func Write(string, <-chan []int16) (time.Duration, error) {
	return 0, errors.New("memo encoding is supported on linux only")
}

func Read(string) ([][]int16, time.Duration, error) {
	return nil, 0, errors.New("memo decoding is supported on linux only")
}
