// Package transcribe turns extracted audio into text, timed segments and
// SRT captions.
//
// Two backends exist: HTTPClient submits an asynchronous prediction job and
// polls it at a rate-limited pace with a bounded attempt budget; WhisperX runs
// the model locally through uvx. Disabled is used when transcription is off.
package transcribe
