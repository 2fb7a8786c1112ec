// Package extract turns an uploaded video into analysis inputs: JPEG
// keyframes at a fixed interval and a mono 16 kHz WAV track for
// transcription. Commands go through an injectable runner.
package extract
