// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/custodian-sys/custodian/consensus"
	"github.com/custodian-sys/custodian/lib/codec"
)

// Client speaks the consensus protocol over one Unix socket
// connection. Collaborator processes use it instead of hand-rolling
// frames. Classified failures come back as *consensus.Error, so a
// caller can errors.As for the kind and honor rate-limit backoff.
//
// A Client is safe for concurrent use; requests are serialized on the
// single connection.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to the consensus socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dialing consensus socket %s: %w", socketPath, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// SubmitObservation submits this node's health report for a round and
// returns the round's resulting status.
func (c *Client) SubmitObservation(round uint64, trustScore float64, facts []consensus.Fact) (consensus.RoundStatus, error) {
	var status consensus.RoundStatus
	err := c.roundTrip(Request{
		Action:     ActionSubmitObservation,
		Round:      round,
		TrustScore: trustScore,
		Facts:      facts,
		ClientTime: time.Now().UTC(),
	}, &status)
	return status, err
}

// QueryRoundStatus fetches a round's current status.
func (c *Client) QueryRoundStatus(round uint64) (consensus.RoundStatus, error) {
	var status consensus.RoundStatus
	err := c.roundTrip(Request{Action: ActionQueryRoundStatus, Round: round}, &status)
	return status, err
}

// QueryMetrics fetches the daemon's counters. Requires the control
// role; peers get an auth_rejected error.
func (c *Client) QueryMetrics() (consensus.MetricsSnapshot, error) {
	var snapshot consensus.MetricsSnapshot
	err := c.roundTrip(Request{Action: ActionQueryMetrics}, &snapshot)
	return snapshot, err
}

// roundTrip sends one request frame and decodes the response into
// result. A failure response with a kind is rebuilt as a
// *consensus.Error.
func (c *Client) roundTrip(request Request, result any) error {
	body, err := codec.Marshal(request)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := WriteFrame(c.conn, body); err != nil {
		return err
	}
	frame, err := ReadFrame(c.conn)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var response Response
	if err := codec.Unmarshal(frame, &response); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !response.OK {
		if response.Kind != "" {
			return &consensus.Error{
				Kind:       response.Kind,
				Message:    response.Error,
				RetryAfter: time.Duration(response.RetryAfterMS) * time.Millisecond,
			}
		}
		return errors.New(response.Error)
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
	}
	return nil
}
