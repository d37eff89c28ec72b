// Package llmtest provides a deterministic llm.Client for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jonathan/job-matcher/internal/llm"
)

// Responder computes a response for one request.
type Responder func(req llm.Request) (string, error)

// StubClient answers requests by Request.Name. It records every request and is safe
// for concurrent use.
type StubClient struct {
	mu         sync.Mutex
	responders map[string]Responder
	requests   []llm.Request
	counts     map[string]int
}

// NewStubClient creates an empty stub. Unregistered names fail with an error.
func NewStubClient() *StubClient {
	return &StubClient{
		responders: make(map[string]Responder),
		counts:     make(map[string]int),
	}
}

// On registers a fixed JSON response for name. v is marshaled unless it is a string.
func (s *StubClient) On(name string, v any) *StubClient {
	var body string
	switch val := v.(type) {
	case string:
		body = val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			panic(fmt.Sprintf("llmtest: marshal response for %s: %v", name, err))
		}
		body = string(data)
	}
	return s.OnFunc(name, func(llm.Request) (string, error) { return body, nil })
}

// OnError makes every request for name fail with err.
func (s *StubClient) OnError(name string, err error) *StubClient {
	return s.OnFunc(name, func(llm.Request) (string, error) { return "", err })
}

// OnFunc registers a responder for name.
func (s *StubClient) OnFunc(name string, fn Responder) *StubClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responders[name] = fn
	return s
}

// CompleteJSON implements llm.Client.
func (s *StubClient) CompleteJSON(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.counts[req.Name]++
	fn, ok := s.responders[req.Name]
	s.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("llmtest: no response registered for %q", req.Name)
	}
	return fn(req)
}

// Close implements llm.Client.
func (s *StubClient) Close() error { return nil }

// Calls returns how many requests named name were made.
func (s *StubClient) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}

// TotalCalls returns the number of requests made under any name.
func (s *StubClient) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of every recorded request in arrival order.
func (s *StubClient) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Request, len(s.requests))
	copy(out, s.requests)
	return out
}
