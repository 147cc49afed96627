// Package mock provides a test double for the exchange package's Contract.
//
// Configure the result fields, then inspect the recorded calls:
//
//	m := &mock.Client{SendTextReply: &exchange.Reply{Text: "hi"}}
//	reply, _ := m.SendText(ctx, "hello", "u1")
//	// m.SendTextCalls[0].Text == "hello"
package mock

import (
	"context"
	"sync"

	"github.com/evoxlab/eva/pkg/exchange"
)

// SendVoiceCall records a single invocation of Client.SendVoice.
type SendVoiceCall struct {
	WAV    []byte
	UserID string
}

// SendTextCall records a single invocation of Client.SendText.
type SendTextCall struct {
	Text   string
	UserID string
}

// Client is a mock implementation of exchange.Contract.
type Client struct {
	mu sync.Mutex

	// SendVoiceReply and SendVoiceErr are returned from SendVoice.
	SendVoiceReply *exchange.Reply
	SendVoiceErr   error

	// SendTextReply and SendTextErr are returned from SendText.
	SendTextReply *exchange.Reply
	SendTextErr   error

	// CheckHealthResult and CheckHealthErr are returned from CheckHealth.
	CheckHealthResult *exchange.Health
	CheckHealthErr    error

	// Recorded calls.
	SendVoiceCalls   []SendVoiceCall
	SendTextCalls    []SendTextCall
	CheckHealthCalls int
}

var _ exchange.Contract = (*Client)(nil)

// SendVoice records the call and returns the configured result.
func (c *Client) SendVoice(_ context.Context, wav []byte, userID string) (*exchange.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SendVoiceCalls = append(c.SendVoiceCalls, SendVoiceCall{WAV: wav, UserID: userID})
	if c.SendVoiceErr != nil {
		return nil, c.SendVoiceErr
	}
	return c.SendVoiceReply, nil
}

// SendText records the call and returns the configured result.
func (c *Client) SendText(_ context.Context, text, userID string) (*exchange.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SendTextCalls = append(c.SendTextCalls, SendTextCall{Text: text, UserID: userID})
	if c.SendTextErr != nil {
		return nil, c.SendTextErr
	}
	return c.SendTextReply, nil
}

// CheckHealth records the call and returns the configured result.
func (c *Client) CheckHealth(context.Context) (*exchange.Health, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CheckHealthCalls++
	if c.CheckHealthErr != nil {
		return nil, c.CheckHealthErr
	}
	return c.CheckHealthResult, nil
}
