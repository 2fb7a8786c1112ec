// Package vision asks an OpenAI-compatible chat model to describe frames,
// images or transcripts, and recovers a {description, tags} result from
// whatever the model returns.
package vision
