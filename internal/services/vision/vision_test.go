package vision

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vidrepo/internal/services"
)

func chatServer(t *testing.T, status int, content string, inspect func(map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if inspect != nil {
			inspect(payload)
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "nope", "type": "server_error"}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"}},
		})
	}))
}

func TestAnalyzeSendsImagesAsDataURLs(t *testing.T) {
	var parts []any
	server := chatServer(t, http.StatusOK, "```json\n{\"description\":\"A dog runs\",\"tags\":[\"Dog\",\" park \",\"dog\"]}\n```", func(payload map[string]any) {
		messages := payload["messages"].([]any)
		user := messages[1].(map[string]any)
		parts = user["content"].([]any)
	})
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL + "/v1", Model: "demo"}, nil)
	result, err := client.Analyze(context.Background(), Request{
		Images:   [][]byte{[]byte("one"), []byte("two")},
		MimeType: "image/png",
		Name:     "dog.png",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Description != "A dog runs" {
		t.Fatalf("unexpected description %q", result.Description)
	}
	if strings.Join(result.Tags, ",") != "dog,park" {
		t.Fatalf("unexpected tags %v", result.Tags)
	}
	if len(parts) != 3 {
		t.Fatalf("expected text + 2 image parts, got %d", len(parts))
	}
	img := parts[1].(map[string]any)["image_url"].(map[string]any)
	if !strings.HasPrefix(img["url"].(string), "data:image/png;base64,") {
		t.Fatalf("expected png data url, got %v", img["url"])
	}
}

func TestAnalyzeTranscriptOnly(t *testing.T) {
	var text string
	server := chatServer(t, http.StatusOK, `{"description":"A talk","tags":"speech, Lecture"}`, func(payload map[string]any) {
		user := payload["messages"].([]any)[1].(map[string]any)
		text = user["content"].([]any)[0].(map[string]any)["text"].(string)
	})
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL, Model: "demo"}, nil)
	result, err := client.Analyze(context.Background(), Request{Name: "talk.mp3", Transcript: "hello everyone"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !strings.Contains(text, "hello everyone") {
		t.Fatalf("expected transcript in prompt, got %q", text)
	}
	if strings.Join(result.Tags, ",") != "speech,lecture" {
		t.Fatalf("unexpected tags %v", result.Tags)
	}
}

func TestAnalyzeAttachesAudioPart(t *testing.T) {
	var parts []any
	server := chatServer(t, http.StatusOK, `{"description":"A podcast","tags":["talk"]}`, func(payload map[string]any) {
		user := payload["messages"].([]any)[1].(map[string]any)
		parts = user["content"].([]any)
	})
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL, Model: "demo"}, nil)
	result, err := client.Analyze(context.Background(), Request{
		Audio:      []byte("ID3"),
		MimeType:   "audio/mpeg",
		Name:       "talk.mp3",
		Transcript: "welcome back",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Description != "A podcast" {
		t.Fatalf("unexpected description %q", result.Description)
	}
	if len(parts) != 2 {
		t.Fatalf("expected text + audio parts, got %d", len(parts))
	}
	text := parts[0].(map[string]any)["text"].(string)
	if !strings.Contains(text, "welcome back") || !strings.Contains(text, "audio recording") {
		t.Fatalf("unexpected prompt %q", text)
	}
	audio := parts[1].(map[string]any)
	if audio["type"] != "input_audio" {
		t.Fatalf("unexpected part type %v", audio["type"])
	}
	input := audio["input_audio"].(map[string]any)
	if input["data"] != "SUQz" || input["format"] != "mp3" {
		t.Fatalf("unexpected audio payload %v", input)
	}
}

func TestAudioFormat(t *testing.T) {
	for mime, want := range map[string]string{
		"":                     "wav",
		"audio/x-wav":          "wav",
		"audio/mpeg":           "mp3",
		"audio/flac":           "flac",
		"audio/x-m4a":          "m4a",
		"audio/ogg; codecs=op": "ogg",
	} {
		if got := AudioFormat(mime); got != want {
			t.Fatalf("AudioFormat(%q) = %q, want %q", mime, got, want)
		}
	}
}

func TestAnalyzeErrorsAreClassified(t *testing.T) {
	server := chatServer(t, http.StatusInternalServerError, "", nil)
	defer server.Close()
	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL, Model: "demo"}, nil)
	if _, err := client.Analyze(context.Background(), Request{Name: "x"}); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}

	bad := chatServer(t, http.StatusOK, "I cannot help with that", nil)
	defer bad.Close()
	client = NewClient(Config{APIKey: "test-key", BaseURL: bad.URL, Model: "demo"}, nil)
	if _, err := client.Analyze(context.Background(), Request{Name: "x"}); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}

	client = NewClient(Config{BaseURL: bad.URL}, nil)
	if _, err := client.Analyze(context.Background(), Request{Name: "x"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDecodeResultRecoversFromNoise(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		desc    string
		tags    string
		wantErr bool
	}{
		{name: "plain", input: `{"description":"x","tags":["a"]}`, desc: "x", tags: "a"},
		{name: "prose around", input: `Sure! Here you go: {"description":"brace } in string","tags":["B","b"]} hope that helps {`, desc: "brace } in string", tags: "b"},
		{name: "escaped quote", input: `{"description":"say \"hi\" {","tags":[]}`, desc: `say "hi" {`},
		{name: "fence without lang", input: "```\n{\"description\":\"f\"}\n```", desc: "f"},
		{name: "nested", input: `{"description":"n","extra":{"k":1},"tags":["#Beach."]}`, desc: "n", tags: "beach"},
		{name: "no object", input: "nothing here", wantErr: true},
		{name: "empty", input: "   ", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeResult(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeResult: %v", err)
			}
			if got.Description != tc.desc {
				t.Fatalf("description = %q, want %q", got.Description, tc.desc)
			}
			if strings.Join(got.Tags, ",") != tc.tags {
				t.Fatalf("tags = %v, want %q", got.Tags, tc.tags)
			}
		})
	}
}
