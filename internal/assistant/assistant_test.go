package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/edgard/cropwise/internal/config"
	apperrors "github.com/edgard/cropwise/internal/errors"
	"github.com/edgard/cropwise/internal/resilience"
)

func testConfig(provider, baseURL string) config.AssistantConfig {
	return config.AssistantConfig{
		Provider:        provider,
		APIKey:          "test-key",
		BaseURL:         baseURL,
		Model:           "test-model",
		Instruction:     config.DefaultInstruction,
		Timeout:         2 * time.Second,
		MaxRetries:      1,
		RetryDelay:      time.Millisecond,
		BreakerFailures: 5,
		BreakerCooldown: time.Second,
	}
}

func remoteErr(t *testing.T, err error) *apperrors.RemoteServiceError {
	t.Helper()

	var re *apperrors.RemoteServiceError
	if !errors.As(err, &re) {
		t.Fatalf("error %v is not a RemoteServiceError", err)
	}

	return re
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		status        int
		code          string
		wantKind      apperrors.RemoteKind
		wantRetryable bool
	}{
		{status: 401, wantKind: apperrors.RemoteAuth},
		{status: 403, wantKind: apperrors.RemoteAuth},
		{status: 429, wantKind: apperrors.RemoteQuota},
		{status: 400, code: "insufficient_quota", wantKind: apperrors.RemoteQuota},
		{status: 400, code: "RESOURCE_EXHAUSTED", wantKind: apperrors.RemoteQuota},
		{status: 500, wantKind: apperrors.RemoteTransient, wantRetryable: true},
		{status: 503, wantKind: apperrors.RemoteTransient, wantRetryable: true},
		{status: 400, wantKind: apperrors.RemoteTransient},
		{status: 404, wantKind: apperrors.RemoteTransient},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d %s", tc.status, tc.code), func(t *testing.T) {
			t.Parallel()

			kind, retryable := classifyStatus(tc.status, tc.code)
			if kind != tc.wantKind || retryable != tc.wantRetryable {
				t.Errorf("classifyStatus(%d, %q) = %s/%v, want %s/%v",
					tc.status, tc.code, kind, retryable, tc.wantKind, tc.wantRetryable)
			}
		})
	}
}

func TestClassifyOpenAI(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		err           error
		wantKind      apperrors.RemoteKind
		wantRetryable bool
	}{
		"api error auth": {
			err:      &gopenai.APIError{HTTPStatusCode: 401, Message: "invalid key"},
			wantKind: apperrors.RemoteAuth,
		},
		"api error quota code": {
			err:      fmt.Errorf("wrapped: %w", &gopenai.APIError{HTTPStatusCode: 429, Code: "insufficient_quota"}),
			wantKind: apperrors.RemoteQuota,
		},
		"request error 502": {
			err:           &gopenai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")},
			wantKind:      apperrors.RemoteTransient,
			wantRetryable: true,
		},
		"deadline": {
			err:           context.DeadlineExceeded,
			wantKind:      apperrors.RemoteTransient,
			wantRetryable: true,
		},
		"canceled": {
			err:      context.Canceled,
			wantKind: apperrors.RemoteTransient,
		},
		"unknown": {
			err:      errors.New("boom"),
			wantKind: apperrors.RemoteTransient,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			re := remoteErr(t, classifyOpenAI(tc.err))
			if re.Kind() != tc.wantKind || re.Retryable() != tc.wantRetryable {
				t.Errorf("got %s/%v, want %s/%v", re.Kind(), re.Retryable(), tc.wantKind, tc.wantRetryable)
			}
			if !errors.Is(re, tc.err) {
				t.Errorf("classified error does not wrap the cause")
			}
		})
	}

	if classifyOpenAI(nil) != nil {
		t.Error("classifyOpenAI(nil) != nil")
	}
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionBody(content string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion","model":"test-model",`+
		`"choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],`+
		`"usage":{"prompt_tokens":12,"completion_tokens":7,"total_tokens":19}}`, content)
}

func TestOpenAIClientComplete(t *testing.T) {
	t.Parallel()

	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody("Irrigate rice when the topsoil dries."))
	}))
	t.Cleanup(server.Close)

	client := NewOpenAI(testConfig("openai", server.URL), zap.NewNop())

	reply, err := client.Complete(context.Background(), Request{
		Instruction: "be helpful",
		Messages: []Message{
			{Role: RoleUser, Content: "hello"},
			{Role: RoleAssistant, Content: "hi"},
			{Role: RoleUser, Content: "When should I irrigate rice?"},
		},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if reply.Content != "Irrigate rice when the topsoil dries." {
		t.Errorf("Content = %q", reply.Content)
	}
	if reply.PromptTokens != 12 || reply.CompletionTokens != 7 {
		t.Errorf("tokens = %d/%d", reply.PromptTokens, reply.CompletionTokens)
	}

	if got.Model != "test-model" {
		t.Errorf("request model = %q", got.Model)
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("request has %d messages, want %d", len(got.Messages), len(wantRoles))
	}
	for i, role := range wantRoles {
		if got.Messages[i].Role != role {
			t.Errorf("message %d role = %q, want %q", i, got.Messages[i].Role, role)
		}
	}
	if got.Messages[0].Content != "be helpful" {
		t.Errorf("system content = %q", got.Messages[0].Content)
	}
}

func TestOpenAIClientErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		status        int
		body          string
		wantKind      apperrors.RemoteKind
		wantRetryable bool
	}{
		{
			name:     "unauthorized",
			status:   401,
			body:     `{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`,
			wantKind: apperrors.RemoteAuth,
		},
		{
			name:     "rate limited",
			status:   429,
			body:     `{"error":{"message":"Rate limit reached","type":"tokens","code":"rate_limit_exceeded"}}`,
			wantKind: apperrors.RemoteQuota,
		},
		{
			name:          "server error",
			status:        503,
			body:          `upstream unavailable`,
			wantKind:      apperrors.RemoteTransient,
			wantRetryable: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			t.Cleanup(server.Close)

			client := NewOpenAI(testConfig("openai", server.URL), zap.NewNop())
			_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})

			re := remoteErr(t, err)
			if re.Kind() != tc.wantKind || re.Retryable() != tc.wantRetryable {
				t.Errorf("got %s/%v, want %s/%v", re.Kind(), re.Retryable(), tc.wantKind, tc.wantRetryable)
			}
			if re.Status() != tc.status {
				t.Errorf("Status() = %d, want %d", re.Status(), tc.status)
			}
		})
	}

	t.Run("connection refused", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		client := NewOpenAI(testConfig("openai", url), zap.NewNop())
		_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})

		re := remoteErr(t, err)
		if re.Kind() != apperrors.RemoteTransient || !re.Retryable() {
			t.Errorf("got %s/%v, want transient/true", re.Kind(), re.Retryable())
		}
	})

	t.Run("no choices", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[]}`)
		}))
		t.Cleanup(server.Close)

		client := NewOpenAI(testConfig("openai", server.URL), zap.NewNop())
		_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})

		if re := remoteErr(t, err); re.Kind() != apperrors.RemoteTransient {
			t.Errorf("Kind() = %s, want transient", re.Kind())
		}
	})
}

func TestGeminiClientComplete(t *testing.T) {
	t.Parallel()

	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Plant maize after the first rains."}]},"finishReason":"STOP"}],`+
			`"usageMetadata":{"promptTokenCount":20,"candidatesTokenCount":8,"totalTokenCount":28}}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewGemini(context.Background(), testConfig("gemini", server.URL), zap.NewNop())
	if err != nil {
		t.Fatalf("NewGemini() error = %v", err)
	}

	reply, err := client.Complete(context.Background(), Request{
		Instruction: "be helpful",
		Messages: []Message{
			{Role: RoleUser, Content: "hello"},
			{Role: RoleAssistant, Content: "hi"},
			{Role: RoleUser, Content: "When should I plant maize?"},
		},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply.Content != "Plant maize after the first rains." {
		t.Errorf("Content = %q", reply.Content)
	}
	if reply.PromptTokens != 20 || reply.CompletionTokens != 8 {
		t.Errorf("tokens = %d/%d", reply.PromptTokens, reply.CompletionTokens)
	}

	contents, _ := body["contents"].([]any)
	if len(contents) != 3 {
		t.Fatalf("request has %d contents, want 3", len(contents))
	}
	if second, _ := contents[1].(map[string]any); second["role"] != "model" {
		t.Errorf("assistant turn role = %v, want model", second["role"])
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Error("request has no systemInstruction")
	}
}

func TestGeminiClientQuota(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewGemini(context.Background(), testConfig("gemini", server.URL), zap.NewNop())
	if err != nil {
		t.Fatalf("NewGemini() error = %v", err)
	}

	_, err = client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if re := remoteErr(t, err); re.Kind() != apperrors.RemoteQuota || re.Retryable() {
		t.Errorf("got %s/%v, want quota/false", re.Kind(), re.Retryable())
	}
}

func TestWithPolicy(t *testing.T) {
	t.Parallel()

	policyFor := func(name string) *resilience.Policy {
		cfg := PolicyConfig(testConfig("openai", ""))
		cfg.Name = name
		return resilience.New(cfg, nil)
	}

	t.Run("sanitizes reply", func(t *testing.T) {
		t.Parallel()

		client := WithPolicy(ClientFunc(func(context.Context, Request) (Reply, error) {
			return Reply{Content: "  Use compost.\r\n\n\n\nWater weekly.\u200b  "}, nil
		}), policyFor("sanitize"), nil)

		reply, err := client.Complete(context.Background(), Request{})
		if err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		if reply.Content != "Use compost.\n\nWater weekly." {
			t.Errorf("Content = %q", reply.Content)
		}
	})

	t.Run("empty reply is transient", func(t *testing.T) {
		t.Parallel()

		client := WithPolicy(ClientFunc(func(context.Context, Request) (Reply, error) {
			return Reply{Content: " \n\t "}, nil
		}), policyFor("empty"), nil)

		_, err := client.Complete(context.Background(), Request{})
		if re := remoteErr(t, err); re.Kind() != apperrors.RemoteTransient {
			t.Errorf("Kind() = %s, want transient", re.Kind())
		}
	})

	t.Run("retries transient once", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		client := WithPolicy(ClientFunc(func(context.Context, Request) (Reply, error) {
			if calls.Add(1) == 1 {
				return Reply{}, apperrors.NewRemoteServiceError(apperrors.RemoteTransient, 503, true, "unavailable", nil)
			}
			return Reply{Content: "ok"}, nil
		}), policyFor("retry"), nil)

		reply, err := client.Complete(context.Background(), Request{})
		if err != nil || reply.Content != "ok" {
			t.Fatalf("Complete() = %q, %v", reply.Content, err)
		}
		if calls.Load() != 2 {
			t.Errorf("calls = %d, want 2", calls.Load())
		}
	})

	t.Run("auth is not retried", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		client := WithPolicy(ClientFunc(func(context.Context, Request) (Reply, error) {
			calls.Add(1)
			return Reply{}, apperrors.NewRemoteServiceError(apperrors.RemoteAuth, 401, false, "denied", nil)
		}), policyFor("auth"), nil)

		_, err := client.Complete(context.Background(), Request{})
		if re := remoteErr(t, err); re.Kind() != apperrors.RemoteAuth {
			t.Errorf("Kind() = %s, want auth", re.Kind())
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("unclassified errors become transient", func(t *testing.T) {
		t.Parallel()

		client := WithPolicy(ClientFunc(func(context.Context, Request) (Reply, error) {
			return Reply{}, errors.New("boom")
		}), policyFor("plain"), nil)

		_, err := client.Complete(context.Background(), Request{})
		if re := remoteErr(t, err); re.Kind() != apperrors.RemoteTransient {
			t.Errorf("Kind() = %s, want transient", re.Kind())
		}
	})

	t.Run("open breaker fails fast", func(t *testing.T) {
		t.Parallel()

		cfg := PolicyConfig(testConfig("openai", ""))
		cfg.Name = "breaker"
		cfg.MaxRetries = 0
		cfg.BreakerFailures = 1
		cfg.BreakerCooldown = time.Hour

		var calls atomic.Int32
		client := WithPolicy(ClientFunc(func(context.Context, Request) (Reply, error) {
			calls.Add(1)
			return Reply{}, apperrors.NewRemoteServiceError(apperrors.RemoteTransient, 500, true, "down", nil)
		}), resilience.New(cfg, nil), nil)

		_, _ = client.Complete(context.Background(), Request{})
		_, err := client.Complete(context.Background(), Request{})

		if !errors.Is(err, resilience.ErrCircuitOpen) {
			t.Errorf("error = %v, want ErrCircuitOpen in chain", err)
		}
		if re := remoteErr(t, err); re.Kind() != apperrors.RemoteTransient {
			t.Errorf("Kind() = %s, want transient", re.Kind())
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		mutate  func(*config.AssistantConfig)
		wantErr bool
	}{
		"openai":           {},
		"gemini":           {mutate: func(c *config.AssistantConfig) { c.Provider = "gemini"; c.BaseURL = "" }},
		"missing key":      {mutate: func(c *config.AssistantConfig) { c.APIKey = "" }, wantErr: true},
		"unknown provider": {mutate: func(c *config.AssistantConfig) { c.Provider = "mystery" }, wantErr: true},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig("openai", "http://127.0.0.1:1")
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}

			client, err := New(context.Background(), cfg, nil)
			if tc.wantErr {
				var startupErr *apperrors.StartupError
				if !errors.As(err, &startupErr) {
					t.Errorf("New() error = %v, want StartupError", err)
				}
				return
			}
			if err != nil || client == nil {
				t.Errorf("New() = %v, %v", client, err)
			}
		})
	}
}
