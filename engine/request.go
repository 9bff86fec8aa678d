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
	"context"
	"net/http"
	"net/url"

	"github.com/wastore/azure-storage-core-go/cred"
)

// AttemptState is the inter-attempt scratch state for a resumable transfer, threaded
// explicitly through the retry loop and handed to the recovery hook. Keeping it a value
// the engine owns (rather than fields mutated in place on the descriptor) makes the
// resume arithmetic testable in isolation.
type AttemptState struct {
	// Offset is the cumulative resume position: where the next attempt starts reading or
	// writing within the logical transfer.
	Offset int64

	// Count is how many bytes remain to be transferred, or < 0 for "to the end".
	Count int64

	// BytesTransferred counts bytes moved by the CURRENT attempt only. The engine resets
	// it to zero at the start of every attempt; the cumulative position lives in Offset.
	BytesTransferred int64

	// ETag, once set, pins the resource version. Build hooks turn it into an If-Match
	// condition so a resumed transfer can never silently read a different version.
	ETag string

	// LockedLocation, once set, overrides location resolution for the remainder of the
	// operation. The recovery hook for a download sets it after partial bytes have been
	// delivered to the caller's sink: alternating endpoints mid-resume risks reading a
	// replica that has not seen the pinned version.
	LockedLocation *StorageLocation
}

// Outcome is the single classification of an attempt: success carrying the typed
// result, a retryable failure, or a fatal one. Preprocess hooks return it directly so
// retryable-but-non-exceptional service conditions (e.g. a conditional race that should
// be re-driven) use the same path as thrown failures.
type Outcome[T any] struct {
	kind   outcomeKind
	result T
	err    error
}

type outcomeKind uint8

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetryable
	outcomeFatal
)

// Success carries the operation's typed result.
func Success[T any](result T) Outcome[T] {
	return Outcome[T]{kind: outcomeSuccess, result: result}
}

// RetryableFailure asks the engine to re-drive the attempt, subject to the retry policy,
// without treating the condition as an application-visible error unless retries exhaust.
func RetryableFailure[T any](reason error) Outcome[T] {
	return Outcome[T]{kind: outcomeRetryable, err: reason}
}

// FatalFailure terminates the operation immediately.
func FatalFailure[T any](err error) Outcome[T] {
	return Outcome[T]{kind: outcomeFatal, err: err}
}

// StorageRequest describes one logical operation to the engine: how to build the HTTP
// request, how to authenticate it, how to turn the response into a typed result, and how
// to recover state between attempts. Hooks the operation doesn't need stay nil.
//
// A descriptor instance belongs to a single Execute call; descriptors carry per-attempt
// state via the AttemptState the engine threads through the hooks.
type StorageRequest[T any] struct {
	// Uri is the primary/secondary endpoint pair this operation targets.
	Uri StorageUri

	// LocationMode constrains which endpoints this operation may use. An operation whose
	// semantics require a fixed location (writes go to primary) sets it here and the
	// engine never widens it.
	LocationMode LocationMode

	// Credential authenticates the request: URI transform at build time, signature after
	// headers are final. Nil means anonymous.
	Credential cred.Credential

	// InitialState seeds the attempt state: the starting offset and remaining count of a
	// resumable transfer, and optionally a pre-pinned ETag. Zero for operations that are
	// not resumable.
	InitialState AttemptState

	// Build constructs the HTTP request against the resolved endpoint. It may consult
	// the attempt state for the resume offset/remaining count and the pinned ETag.
	// A Build failure is local; the request is never sent.
	Build func(ctx context.Context, endpoint *url.URL, state *AttemptState) (*http.Request, error)

	// SetHeaders attaches operation-specific headers (metadata, conditions) after Build.
	// Optional.
	SetHeaders func(req *http.Request, state *AttemptState) error

	// Preprocess inspects status and headers and classifies the attempt. It must not
	// consume the body; body handling belongs to Postprocess. Required.
	Preprocess func(resp *http.Response, state *AttemptState) Outcome[T]

	// Postprocess consumes the response body on a successful attempt, e.g. streaming it
	// to the caller's sink while counting state.BytesTransferred. An error here is fatal
	// for the attempt; the engine classifies it like any other failure. Optional.
	Postprocess func(resp *http.Response, result T, state *AttemptState) (T, error)

	// Recover repositions state before the next attempt: advance Offset past the bytes
	// already delivered, shrink Count, pin the ETag. BytesTransferred still holds the
	// failed attempt's count when Recover runs; the engine resets it afterwards. Optional.
	Recover func(state *AttemptState, last RequestResult) error
}
