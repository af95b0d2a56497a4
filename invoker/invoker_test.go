/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package invoker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// completionServer records the last chat-completion request body and replies
// with a fixed assistant message.
type completionServer struct {
	*httptest.Server
	lastBody map[string]any
	lastAuth string
	calls    int
}

func newCompletionServer(t *testing.T, content string) *completionServer {
	t.Helper()
	cs := &completionServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		cs.calls++
		cs.lastAuth = r.Header.Get("Authorization")
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		cs.lastBody = body
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-test",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(cs.Close)
	return cs
}

func testClient(t *testing.T) (*Client, *completionServer, *completionServer) {
	t.Helper()
	candidate := newCompletionServer(t, "candidate answer")
	judgeSrv := newCompletionServer(t, "judge answer")
	client := NewClientFromConfig(Config{
		CandidateAPIBase: candidate.URL,
		CandidateAPIKey:  "candidate-key",
		JudgeAPIBase:     judgeSrv.URL,
		JudgeAPIKey:      "judge-key",
	})
	return client, candidate, judgeSrv
}

func TestGenerateCandidate(t *testing.T) {
	client, candidate, judgeSrv := testClient(t)

	got, err := client.Generate(context.Background(), Request{
		Messages:  []Message{{Role: RoleUser, Content: "translate this"}},
		Model:     "test-model",
		MaxTokens: 20000,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "candidate answer" {
		t.Errorf("Generate: got = %q", got)
	}
	if judgeSrv.calls != 0 {
		t.Errorf("judge endpoint called %d times for a candidate request", judgeSrv.calls)
	}
	if candidate.lastAuth != "Bearer candidate-key" {
		t.Errorf("authorization: got = %q", candidate.lastAuth)
	}
	if got := candidate.lastBody["model"]; got != "test-model" {
		t.Errorf("model: got = %v", got)
	}
	if got := candidate.lastBody["max_tokens"]; got != float64(20000) {
		t.Errorf("max_tokens: got = %v", got)
	}
	if _, ok := candidate.lastBody["temperature"]; ok {
		t.Error("temperature should be omitted when unset")
	}
}

func TestGenerateJudgingMode(t *testing.T) {
	client, candidate, judgeSrv := testClient(t)

	hot := 0.9
	got, err := client.Generate(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "you are a judge"},
			{Role: RoleUser, Content: "judge this"},
		},
		Model:       "judge-model",
		JudgingMode: true,
		Temperature: &hot, // overridden by judging mode
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "judge answer" {
		t.Errorf("Generate: got = %q", got)
	}
	if candidate.calls != 0 {
		t.Errorf("candidate endpoint called %d times for a judge request", candidate.calls)
	}
	if judgeSrv.lastAuth != "Bearer judge-key" {
		t.Errorf("authorization: got = %q", judgeSrv.lastAuth)
	}
	if got := judgeSrv.lastBody["temperature"]; got != float64(0.0) {
		t.Errorf("temperature: got = %v, wanted 0", got)
	}
	if got := judgeSrv.lastBody["top_p"]; got != float64(0.7) {
		t.Errorf("top_p: got = %v, wanted 0.7", got)
	}
}

func TestGenerateUnsupportedRole(t *testing.T) {
	client, _, _ := testClient(t)
	_, err := client.Generate(context.Background(), Request{
		Messages: []Message{{Role: "tool", Content: "x"}},
		Model:    "m",
	})
	if err == nil {
		t.Error("expected error for unsupported role")
	}
}

func TestGenerateTransportFailure(t *testing.T) {
	client := NewClientFromConfig(Config{
		CandidateAPIBase: "http://127.0.0.1:1", // nothing listens here
		CandidateAPIKey:  "k",
		JudgeAPIBase:     "http://127.0.0.1:1",
		JudgeAPIKey:      "k",
	})
	_, err := client.Generate(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "x"}},
		Model:    "m",
	})
	if err == nil {
		t.Error("expected transport error")
	}
}

// stubInvoker lets the decorator test observe the effective deadline.
type stubInvoker struct {
	sawDeadline bool
}

func (s *stubInvoker) Generate(ctx context.Context, _ Request) (string, error) {
	_, s.sawDeadline = ctx.Deadline()
	return "", nil
}

func TestWithTimeout(t *testing.T) {
	stub := &stubInvoker{}
	wrapped := WithTimeout(stub, 50*time.Millisecond)
	if _, err := wrapped.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !stub.sawDeadline {
		t.Error("expected a deadline on the call context")
	}

	if got := WithTimeout(stub, 0); got != Interface(stub) {
		t.Error("zero timeout should return the invoker unchanged")
	}
}
