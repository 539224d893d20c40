// SPDX-License-Identifier: ice License 1.0

package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ice-blockchain/permafrost/model"
)

type (
	Outcome uint8

	// PaymentResult is the terminal state of one payment request. Exactly
	// one of the outcomes applies, Response is set only on success or
	// wallet-reported error.
	PaymentResult struct {
		Response *model.Event
		Err      error
		Outcome  Outcome
	}

	// PaymentTracker correlates wallet responses with outstanding payment
	// requests. For each awaited request it registers a response
	// subscription, tears it down exactly once whatever the outcome, and
	// silently drops responses arriving after resolution.
	PaymentTracker struct {
		subscribe   func(requestID string)
		unsubscribe func(requestID string)
		mx          sync.Mutex
		waiters     map[string]chan *model.Event
	}
)

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeError
	OutcomeTimeout

	DefaultPaymentTimeout = 60 * time.Second

	responseErrorTagName = "error"
)

var ErrPaymentTimedOut = errors.New("payment request timed out")

func NewPaymentTracker(subscribe, unsubscribe func(requestID string)) *PaymentTracker {
	return &PaymentTracker{
		subscribe:   subscribe,
		unsubscribe: unsubscribe,
		waiters:     make(map[string]chan *model.Event),
	}
}

// Await blocks until the wallet responds to the given request, the timeout
// elapses, or the context is canceled. A non-positive timeout falls back to
// DefaultPaymentTimeout.
func (t *PaymentTracker) Await(ctx context.Context, requestID string, timeout time.Duration) PaymentResult {
	if timeout <= 0 {
		timeout = DefaultPaymentTimeout
	}
	delivery := make(chan *model.Event, 1)
	t.mx.Lock()
	t.waiters[requestID] = delivery
	t.mx.Unlock()
	t.subscribe(requestID)
	defer func() {
		t.mx.Lock()
		delete(t.waiters, requestID)
		t.mx.Unlock()
		t.unsubscribe(requestID)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case response := <-delivery:
		if reason := responseError(response); reason != "" {
			return PaymentResult{
				Outcome:  OutcomeError,
				Response: response,
				Err:      errors.Errorf("wallet rejected payment request %v: %v", requestID, reason),
			}
		}

		return PaymentResult{Outcome: OutcomeSuccess, Response: response}
	case <-timer.C:
		return PaymentResult{Outcome: OutcomeTimeout, Err: errors.Wrapf(ErrPaymentTimedOut, "request %v", requestID)}
	case <-ctx.Done():
		return PaymentResult{Outcome: OutcomeTimeout, Err: errors.Wrapf(ctx.Err(), "request %v", requestID)}
	}
}

// Deliver routes a wallet response to its waiter. Responses that reference no
// outstanding request, including ones arriving after the waiter resolved,
// are dropped.
func (t *PaymentTracker) Deliver(response *model.Event) {
	if response == nil {
		return
	}
	requestID := response.GetTag("e").Value()
	if requestID == "" {
		return
	}
	t.mx.Lock()
	delivery := t.waiters[requestID]
	delete(t.waiters, requestID)
	t.mx.Unlock()
	if delivery != nil {
		delivery <- response
	}
}

func responseError(response *model.Event) string {
	return response.GetTag(responseErrorTagName).Value()
}
