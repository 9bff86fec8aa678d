// Copyright © 2017 Microsoft <wastore@microsoft.com>
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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperationContextClientRequestID(t *testing.T) {
	a := assert.New(t)

	oc1 := NewOperationContext()
	oc2 := NewOperationContext()
	a.NotEmpty(oc1.ClientRequestID())
	a.NotEqual(oc1.ClientRequestID(), oc2.ClientRequestID())

	// stable for the lifetime of the context, across reuse
	id := oc1.ClientRequestID()
	oc1.Initialize()
	a.Equal(id, oc1.ClientRequestID())
}

func TestOperationContextResults(t *testing.T) {
	a := assert.New(t)
	oc := NewOperationContext()

	_, ok := oc.LastResult()
	a.False(ok)
	a.Empty(oc.RequestResults())

	r1 := RequestResult{StatusCode: 503, TargetLocation: EStorageLocation.Primary()}
	r2 := RequestResult{StatusCode: 200, TargetLocation: EStorageLocation.Secondary()}
	oc.appendResult(r1)
	oc.appendResult(r2)

	results := oc.RequestResults()
	a.Len(results, 2)
	a.Equal(503, results[0].StatusCode)
	a.Equal(200, results[1].StatusCode)

	last, ok := oc.LastResult()
	a.True(ok)
	a.Equal(200, last.StatusCode)

	// the returned slice is a copy; mutating it cannot corrupt the history
	results[0].StatusCode = 999
	a.Equal(503, oc.RequestResults()[0].StatusCode)
}

func TestOperationContextInitializeClearsHistoryKeepsListeners(t *testing.T) {
	a := assert.New(t)
	oc := NewOperationContext()

	fired := 0
	oc.AddSendingRequestListener(func(SendingRequestEvent) { fired++ })

	oc.appendResult(RequestResult{StatusCode: 200})
	oc.Initialize()
	a.Empty(oc.RequestResults())

	oc.sendingRequest.fire(SendingRequestEvent{TryNumber: 1})
	a.Equal(1, fired)
}

func TestEventListenerAddRemove(t *testing.T) {
	a := assert.New(t)
	oc := NewOperationContext()

	var order []string
	first := oc.AddRetryingListener(func(RetryingEvent) { order = append(order, "first") })
	oc.AddRetryingListener(func(RetryingEvent) { order = append(order, "second") })

	oc.retrying.fire(RetryingEvent{})
	a.Equal([]string{"first", "second"}, order)

	oc.RemoveRetryingListener(first)
	order = nil
	oc.retrying.fire(RetryingEvent{})
	a.Equal([]string{"second"}, order)

	// removing again, or removing an id that never existed, is harmless
	oc.RemoveRetryingListener(first)
	oc.RemoveRetryingListener(EventRegistration(12345))
	order = nil
	oc.retrying.fire(RetryingEvent{})
	a.Equal([]string{"second"}, order)
}

func TestEventListenerMayRemoveItselfDuringFire(t *testing.T) {
	a := assert.New(t)
	oc := NewOperationContext()

	calls := 0
	var id EventRegistration
	id = oc.AddResponseReceivedListener(func(ResponseReceivedEvent) {
		calls++
		oc.RemoveResponseReceivedListener(id)
	})

	oc.responseReceived.fire(ResponseReceivedEvent{Response: &http.Response{}})
	oc.responseReceived.fire(ResponseReceivedEvent{Response: &http.Response{}})
	a.Equal(1, calls)
}

func TestClientTime(t *testing.T) {
	a := assert.New(t)
	oc := NewOperationContext()

	now := time.Now()
	oc.appendResult(RequestResult{StartTime: now, StopTime: now.Add(100 * time.Millisecond)})
	oc.appendResult(RequestResult{StartTime: now.Add(time.Second), StopTime: now.Add(time.Second + 50*time.Millisecond)})

	a.Equal(150*time.Millisecond, oc.ClientTime())
}
