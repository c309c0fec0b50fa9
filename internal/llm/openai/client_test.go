package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lab-extractor/internal/llm"
)

func TestStructure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body["model"])
		assert.InDelta(t, 0.1, body["temperature"], 1e-6)
		assert.Equal(t, float64(1000), body["max_tokens"])
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
		msgs := body["messages"].([]any)
		if !assert.Len(t, msgs, 2) {
			return
		}
		assert.Equal(t, "SYSTEM", msgs[0].(map[string]any)["content"])
		assert.Equal(t, "Hemoglobin 14.2", msgs[1].(map[string]any)["content"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" {\"tests\":[]} "}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "gpt-test", Temperature: 0.1}, nil)
	out, err := c.Structure(context.Background(), "SYSTEM", "Hemoglobin 14.2")
	require.NoError(t, err)
	assert.Equal(t, `{"tests":[]}`, out)
	assert.Equal(t, "openai:gpt-test", c.Name())
}

func TestStructureRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := c.Structure(context.Background(), "s", "t")
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrRateLimited)
}

func TestStructureEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := c.Structure(context.Background(), "s", "t")
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestStructureTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil)
	_, err := c.Structure(context.Background(), "s", "t")
	require.Error(t, err)
}

func TestStructureWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	c := NewClient(Config{}, nil)
	_, err := c.Structure(context.Background(), "s", "t")
	assert.Error(t, err)
}
