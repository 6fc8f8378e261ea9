package main

import "github.com/alecdray/talkie/internal/audio"

// Swapped out in tests so screens can run without real devices.
var (
	audioRecorder = audio.StartRecorder
	audioPlayer   = audio.StartPlayer
)
