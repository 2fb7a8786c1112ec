package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// go-openai has no input_audio message part, so the audio payload rides on
// the request context and audioDoer splices it into the last user message
// of the encoded chat request.

type audioKey struct{}

type audioPayload struct {
	data   []byte
	format string
}

func withAudio(ctx context.Context, data []byte, mimeType string) context.Context {
	if len(data) == 0 {
		return ctx
	}
	return context.WithValue(ctx, audioKey{}, audioPayload{data: data, format: AudioFormat(mimeType)})
}

// AudioFormat maps a MIME type onto the input_audio format name.
func AudioFormat(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	switch mimeType {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "", "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return "wav"
	}
	sub := strings.TrimPrefix(mimeType, "audio/")
	return strings.TrimPrefix(sub, "x-")
}

type audioDoer struct {
	next openai.HTTPDoer
}

func (d audioDoer) Do(req *http.Request) (*http.Response, error) {
	payload, ok := req.Context().Value(audioKey{}).(audioPayload)
	if !ok || req.Body == nil || req.Method != http.MethodPost {
		return d.next.Do(req)
	}
	raw, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("vision: read request body: %w", err)
	}
	body, err := spliceAudio(raw, payload)
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return d.next.Do(req)
}

func spliceAudio(raw []byte, payload audioPayload) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("vision: decode chat request: %w", err)
	}
	var messages []map[string]json.RawMessage
	if err := json.Unmarshal(doc["messages"], &messages); err != nil {
		return nil, fmt.Errorf("vision: decode messages: %w", err)
	}
	for i := len(messages) - 1; i >= 0; i-- {
		var role string
		_ = json.Unmarshal(messages[i]["role"], &role)
		if role != openai.ChatMessageRoleUser {
			continue
		}
		var parts []json.RawMessage
		if err := json.Unmarshal(messages[i]["content"], &parts); err != nil {
			return nil, fmt.Errorf("vision: user content is not a part list: %w", err)
		}
		part, err := json.Marshal(map[string]any{
			"type": "input_audio",
			"input_audio": map[string]string{
				"data":   base64.StdEncoding.EncodeToString(payload.data),
				"format": payload.format,
			},
		})
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
		if messages[i]["content"], err = json.Marshal(parts); err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(messages)
		if err != nil {
			return nil, err
		}
		doc["messages"] = encoded
		return json.Marshal(doc)
	}
	return raw, nil
}
