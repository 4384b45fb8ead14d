package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/longkey1/webchat/internal/chat"
)

type testConfig struct {
	baseURL string
	token   string
}

func (c testConfig) GetBaseURL(provider string) (string, error) {
	return c.baseURL, nil
}

func (c testConfig) GetToken(provider string) (string, error) {
	if c.token == "" {
		return "", fmt.Errorf("%s token is not configured", provider)
	}
	return c.token, nil
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProvider(testConfig{baseURL: srv.URL, token: "sk-test"}, WithHTTPClient(srv.Client()))
}

func testRequest() chat.Request {
	temp := float32(0.3)
	return chat.Request{
		Model:        "openai:gpt-4.1",
		SystemPrompt: "be brief",
		Temperature:  &temp,
		History: []chat.Message{
			{Role: chat.RoleUser, Content: "hi"},
			{Role: chat.RoleAssistant, Content: "hello"},
		},
		Text: "how are you?",
	}
}

func TestGenerate(t *testing.T) {
	var got ChatCompletionRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"id":"x","choices":[{"message":{"role":"assistant","content":"fine"}}]}`)
	})

	reply, err := p.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if reply != "fine" {
		t.Errorf("Generate() = %q", reply)
	}

	if got.Model != "gpt-4.1" || got.Stream {
		t.Errorf("request model = %q, stream = %v", got.Model, got.Stream)
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("request messages = %+v", got.Messages)
	}
	for i, role := range wantRoles {
		if got.Messages[i].Role != role {
			t.Errorf("messages[%d].Role = %q, want %q", i, got.Messages[i].Role, role)
		}
	}
	if got.Messages[3].Content != "how are you?" {
		t.Errorf("last message = %q", got.Messages[3].Content)
	}
	if got.Temperature == nil || *got.Temperature != 0.3 {
		t.Errorf("temperature = %v", got.Temperature)
	}
}

func TestGenerateNoChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"x","choices":[]}`)
	})
	reply, err := p.Generate(context.Background(), testRequest())
	if err != nil || reply != "" {
		t.Errorf("Generate() = %q, %v; want empty reply and no error", reply, err)
	}
}

func TestGenerateAPIError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	})

	_, err := p.Generate(context.Background(), testRequest())
	var apiErr *chat.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Generate() error = %v, want *chat.APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || !strings.Contains(apiErr.Body, "rate limited") {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestGenerateMissingToken(t *testing.T) {
	p := NewProvider(testConfig{baseURL: "http://127.0.0.1:0"})
	if _, err := p.Generate(context.Background(), testRequest()); err == nil || !strings.Contains(err.Error(), "token") {
		t.Errorf("Generate() error = %v", err)
	}
}

func TestGenerateStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("stream flag not set")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range []string{"Hel", "", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", c)
		}
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var chunks []string
	reply, err := p.GenerateStream(context.Background(), testRequest(), func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream() error = %v", err)
	}
	if reply != "Hello" || strings.Join(chunks, "|") != "Hel|lo" {
		t.Errorf("GenerateStream() = %q, chunks %v", reply, chunks)
	}
}

func TestGenerateStreamSinkError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n")
	})

	stop := errors.New("stop")
	_, err := p.GenerateStream(context.Background(), testRequest(), func(string) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("GenerateStream() error = %v, want stop", err)
	}
}

func TestListModels(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":[
			{"id":"gpt-4.1","owned_by":"openai"},
			{"id":"text-embedding-3-small","owned_by":"openai"},
			{"id":"o3","owned_by":"openai"},
			{"id":"gpt-4o-mini-tts","owned_by":"openai"},
			{"id":"dall-e-3","owned_by":"openai"}
		]}`)
	})

	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	var ids []string
	for _, m := range models {
		ids = append(ids, m.ID)
		if m.Provider != ProviderName {
			t.Errorf("provider = %q", m.Provider)
		}
	}
	if strings.Join(ids, ",") != "o3,gpt-4.1" {
		t.Errorf("ListModels() ids = %v", ids)
	}
}
