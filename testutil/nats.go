package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mnbf9rca/eventhub-to-timescale/natsclient"
)

// Message is one published payload.
type Message struct {
	Subject string
	Data    []byte
}

// MockNATSClient is an in-memory stand-in for natsclient.Client's
// Subscribe and Publish. Safe for concurrent use.
type MockNATSClient struct {
	mu           sync.Mutex
	handlers     map[string][]*mockSubscription
	published    []Message
	publishErr   map[string]error
	subscribeErr error
}

// NewMockNATSClient returns an empty client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{
		handlers:   make(map[string][]*mockSubscription),
		publishErr: make(map[string]error),
	}
}

// FailPublish makes every publish to subject return err.
func (m *MockNATSClient) FailPublish(subject string, err error) {
	m.mu.Lock()
	m.publishErr[subject] = err
	m.mu.Unlock()
}

// FailSubscribe makes every Subscribe call return err.
func (m *MockNATSClient) FailSubscribe(err error) {
	m.mu.Lock()
	m.subscribeErr = err
	m.mu.Unlock()
}

type mockSubscription struct {
	mock    *MockNATSClient
	subject string
	handler func(context.Context, []byte)
}

// Unsubscribe removes the handler. A second call is a no-op.
func (s *mockSubscription) Unsubscribe() error {
	m := s.mock
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.handlers[s.subject]
	for i, sub := range subs {
		if sub == s {
			m.handlers[s.subject] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(m.handlers[s.subject]) == 0 {
		delete(m.handlers, s.subject)
	}
	return nil
}

// Subscribe registers handler for a subject pattern.
func (m *MockNATSClient) Subscribe(_ context.Context, subject string, handler func(context.Context, []byte)) (natsclient.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return nil, m.subscribeErr
	}
	sub := &mockSubscription{mock: m, subject: subject, handler: handler}
	m.handlers[subject] = append(m.handlers[subject], sub)
	return sub, nil
}

// Publish records data and runs every matching handler before returning.
func (m *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	m.mu.Lock()
	if err := m.publishErr[subject]; err != nil {
		m.mu.Unlock()
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	m.published = append(m.published, Message{Subject: subject, Data: append([]byte(nil), data...)})
	m.mu.Unlock()

	m.Deliver(ctx, subject, data)
	return nil
}

// Deliver runs the handlers matching subject without recording a publish,
// as if the message came from another process. It returns the handler count.
func (m *MockNATSClient) Deliver(ctx context.Context, subject string, data []byte) int {
	m.mu.Lock()
	var targets []func(context.Context, []byte)
	for pattern, subs := range m.handlers {
		if MatchSubject(pattern, subject) {
			for _, sub := range subs {
				targets = append(targets, sub.handler)
			}
		}
	}
	m.mu.Unlock()

	for _, h := range targets {
		h(ctx, data)
	}
	return len(targets)
}

// Published returns the messages sent to subject, oldest first.
func (m *MockNATSClient) Published(subject string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, msg := range m.published {
		if msg.Subject == subject {
			out = append(out, msg)
		}
	}
	return out
}

// Subscriptions returns the number of handlers registered for pattern.
func (m *MockNATSClient) Subscriptions(pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers[pattern])
}

// MatchSubject reports whether subject matches a NATS pattern. "*" matches
// one token and a trailing ">" matches one or more.
func MatchSubject(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")
	for i, tok := range p {
		if tok == ">" {
			return len(s) > i
		}
		if i >= len(s) {
			return false
		}
		if tok != "*" && tok != s[i] {
			return false
		}
	}
	return len(p) == len(s)
}
