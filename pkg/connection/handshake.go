package connection

import (
	"fmt"
	"time"

	"github.com/wsbase-protocol/wsbase-go/pkg/auth"
	"github.com/wsbase-protocol/wsbase-go/pkg/transport"
	"github.com/wsbase-protocol/wsbase-go/pkg/wire"
)

// authenticateInitiator runs the initiator side of the handshake on a
// freshly opened channel: wait for auth.challenge, sign it, send
// auth.response, wait for auth.result. Exactly one attempt per
// Authenticating entry.
//
// Verification failures come back wrapped in ErrAuthenticationFailed;
// anything else is a transport-level failure the reconnection policy
// may retry.
func (c *Conn) authenticateInitiator(ch transport.Channel) ([]byte, error) {
	timeout := c.opts.HandshakeTimeout

	env, err := receiveEnvelope(ch, timeout)
	if err != nil {
		return nil, err
	}
	if env.Kind != wire.KindAuthChallenge {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrAuthenticationFailed, wire.KindAuthChallenge, env.Kind)
	}

	var challenge auth.ChallengePayload
	if err := wire.DecodePayload(env.Payload, &challenge); err != nil {
		return nil, fmt.Errorf("%w: malformed challenge: %v", ErrAuthenticationFailed, err)
	}

	signed, err := c.opts.Initiator.SignChallenge(&challenge)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	if err := sendEnvelope(ch, &wire.Envelope{
		ID:            c.nextID.Add(1),
		Kind:          wire.KindAuthResponse,
		CorrelationID: env.ID,
		Timestamp:     time.Now().UnixMilli(),
	}, signed); err != nil {
		return nil, err
	}

	result, err := receiveEnvelope(ch, timeout)
	if err != nil {
		return nil, err
	}
	if result.Kind != wire.KindAuthResult {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrAuthenticationFailed, wire.KindAuthResult, result.Kind)
	}

	var verdict auth.ResultPayload
	if err := wire.DecodePayload(result.Payload, &verdict); err != nil {
		return nil, fmt.Errorf("%w: malformed result: %v", ErrAuthenticationFailed, err)
	}
	if !verdict.OK {
		return nil, fmt.Errorf("%w: %s", ErrAuthenticationFailed, verdict.Reason)
	}
	return verdict.SessionToken, nil
}

// AuthenticateResponder runs the responder side of the handshake on a
// freshly accepted channel: send auth.challenge, verify the signed
// auth.response, report the verdict in auth.result. On success it
// returns the derived session token for the Conn built via Accept.
//
// The failure verdict is sent to the peer before the error returns, so
// the initiator sees ErrAuthenticationFailed instead of a dead channel.
func AuthenticateResponder(ch transport.Channel, responder *auth.Responder, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	challenge := responder.IssueChallenge()
	if err := sendEnvelope(ch, &wire.Envelope{
		ID:        1,
		Kind:      wire.KindAuthChallenge,
		Timestamp: time.Now().UnixMilli(),
		Flags:     wire.FlagExpectReply,
	}, challenge); err != nil {
		return nil, err
	}

	env, err := receiveEnvelope(ch, timeout)
	if err != nil {
		return nil, err
	}
	if env.Kind != wire.KindAuthResponse {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrAuthenticationFailed, wire.KindAuthResponse, env.Kind)
	}

	var response auth.ResponsePayload
	if err := wire.DecodePayload(env.Payload, &response); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrAuthenticationFailed, err)
	}

	token, verifyErr := responder.VerifyResponse(&response)
	verdict := auth.ResultPayload{OK: verifyErr == nil, SessionToken: token}
	if verifyErr != nil {
		verdict.Reason = verifyErr.Error()
	}

	if err := sendEnvelope(ch, &wire.Envelope{
		ID:            2,
		Kind:          wire.KindAuthResult,
		CorrelationID: env.ID,
		Timestamp:     time.Now().UnixMilli(),
	}, &verdict); err != nil {
		return nil, err
	}
	if verifyErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, verifyErr)
	}
	return token, nil
}

func sendEnvelope(ch transport.Channel, env *wire.Envelope, payload any) error {
	raw, err := wire.EncodePayload(payload)
	if err != nil {
		return err
	}
	env.Payload = raw

	data, err := wire.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return ch.Send(data)
}

// receiveEnvelope reads one envelope with a deadline. On timeout the
// channel is closed to unblock the pending read.
func receiveEnvelope(ch transport.Channel, timeout time.Duration) (*wire.Envelope, error) {
	type result struct {
		data []byte
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		data, err := ch.Receive()
		resCh <- result{data, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-resCh:
		if res.err != nil {
			return nil, res.err
		}
		return wire.DecodeEnvelope(res.data)
	case <-timer.C:
		ch.Close()
		return nil, fmt.Errorf("handshake read timed out after %s", timeout)
	}
}
