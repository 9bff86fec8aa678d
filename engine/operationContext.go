// Copyright © Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package engine

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SendingRequestEvent fires immediately before a fully built and signed request is
// transmitted. Listeners may inspect the request but must not mutate signed headers.
type SendingRequestEvent struct {
	Request   *http.Request
	TryNumber int32
}

// ResponseReceivedEvent fires as soon as status and headers have been read, before the
// body is consumed.
type ResponseReceivedEvent struct {
	Request  *http.Request
	Response *http.Response
}

// RetryingEvent fires after an attempt has been classified retryable and before the
// backoff sleep for the next attempt.
type RetryingEvent struct {
	LastResult    RequestResult
	NextTryNumber int32
	NextLocation  StorageLocation
	Backoff       time.Duration
}

// RequestCompletedEvent fires exactly once per logical operation, after terminal
// success or failure. LastResult is zero-valued when the operation failed before any
// attempt was transmitted.
type RequestCompletedEvent struct {
	LastResult RequestResult
	Err        error // nil on success
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// EventRegistration identifies a registered listener so it can be removed later.
type EventRegistration int64

// eventList is a mutable, ordered set of listeners. Listeners are invoked in
// registration order; add/remove is safe at any time, including from within a listener
// running on another operation.
type eventList[E any] struct {
	mu        sync.Mutex
	nextID    EventRegistration
	order     []EventRegistration
	listeners map[EventRegistration]func(E)
}

func (l *eventList[E]) add(f func(E)) EventRegistration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listeners == nil {
		l.listeners = make(map[EventRegistration]func(E))
	}
	l.nextID++
	id := l.nextID
	l.listeners[id] = f
	l.order = append(l.order, id)
	return id
}

func (l *eventList[E]) remove(id EventRegistration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.listeners, id)
	for i, existing := range l.order {
		if existing == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

func (l *eventList[E]) fire(e E) {
	// snapshot under lock so a listener may deregister itself without deadlocking
	l.mu.Lock()
	fs := make([]func(E), 0, len(l.order))
	for _, id := range l.order {
		if f, ok := l.listeners[id]; ok {
			fs = append(fs, f)
		}
	}
	l.mu.Unlock()
	for _, f := range fs {
		f(e)
	}
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// OperationContext accompanies one logical (possibly multi-attempt) operation through
// the engine. It carries the correlation id sent as x-ms-client-request-id, accumulates
// one RequestResult per physical attempt, and hosts the four event hook slots.
//
// A context may be reused for a logically new operation by calling Initialize, which
// clears the per-operation state but keeps registered listeners.
type OperationContext struct {
	clientRequestID string

	mu         sync.Mutex
	results    []RequestResult
	clientTime time.Duration

	sendingRequest   eventList[SendingRequestEvent]
	responseReceived eventList[ResponseReceivedEvent]
	retrying         eventList[RetryingEvent]
	requestCompleted eventList[RequestCompletedEvent]
}

// NewOperationContext creates a context with a fresh correlation id.
func NewOperationContext() *OperationContext {
	return &OperationContext{clientRequestID: uuid.NewString()}
}

// Initialize clears per-operation state (attempt history and accumulated client time)
// so the same context object can be reused for a logically new operation. Event
// listeners survive.
func (oc *OperationContext) Initialize() {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	oc.results = nil
	oc.clientTime = 0
}

// ClientRequestID returns this operation's correlation id.
func (oc *OperationContext) ClientRequestID() string { return oc.clientRequestID }

// RequestResults returns a copy of the attempt history, in strict attempt order.
func (oc *OperationContext) RequestResults() []RequestResult {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	out := make([]RequestResult, len(oc.results))
	copy(out, oc.results)
	return out
}

// LastResult returns the most recent attempt's result; ok is false when no attempt has
// been made yet.
func (oc *OperationContext) LastResult() (r RequestResult, ok bool) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	if len(oc.results) == 0 {
		return RequestResult{}, false
	}
	return oc.results[len(oc.results)-1], true
}

// ClientTime is the cumulative wall-clock latency across all attempts so far.
func (oc *OperationContext) ClientTime() time.Duration {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	return oc.clientTime
}

func (oc *OperationContext) appendResult(r RequestResult) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	oc.results = append(oc.results, r)
	oc.clientTime += r.Duration()
}

func (oc *OperationContext) resultsSnapshot() []RequestResult {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	out := make([]RequestResult, len(oc.results))
	copy(out, oc.results)
	return out
}

// Event registration. Each Add returns a registration token for the matching Remove.

func (oc *OperationContext) AddSendingRequestListener(f func(SendingRequestEvent)) EventRegistration {
	return oc.sendingRequest.add(f)
}
func (oc *OperationContext) RemoveSendingRequestListener(id EventRegistration) {
	oc.sendingRequest.remove(id)
}

func (oc *OperationContext) AddResponseReceivedListener(f func(ResponseReceivedEvent)) EventRegistration {
	return oc.responseReceived.add(f)
}
func (oc *OperationContext) RemoveResponseReceivedListener(id EventRegistration) {
	oc.responseReceived.remove(id)
}

func (oc *OperationContext) AddRetryingListener(f func(RetryingEvent)) EventRegistration {
	return oc.retrying.add(f)
}
func (oc *OperationContext) RemoveRetryingListener(id EventRegistration) {
	oc.retrying.remove(id)
}

func (oc *OperationContext) AddRequestCompletedListener(f func(RequestCompletedEvent)) EventRegistration {
	return oc.requestCompleted.add(f)
}
func (oc *OperationContext) RemoveRequestCompletedListener(id EventRegistration) {
	oc.requestCompleted.remove(id)
}
