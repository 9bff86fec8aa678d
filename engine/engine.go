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
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/wastore/azure-storage-core-go/common"
)

// ServiceVersion is the storage service version stamped onto every request.
const ServiceVersion = "2017-04-17"

// drainLimit bounds how much of an unwanted response body we read before closing, so
// the connection can be reused without buffering an arbitrarily large error payload.
const drainLimit = 4 * 1024

// slowTryThreshold elevates a successful try's log entry to warning when the attempt
// took this long or longer.
const slowTryThreshold = 10 * time.Second

// ExecutionEngine drives logical operations to completion: per attempt it resolves a
// location, builds and signs the request, transmits it, classifies the outcome, and
// consults the retry policy and execution deadline before going around again.
//
// An engine is immutable after construction and safe for concurrent use; each Execute
// call owns its OperationContext and StorageRequest.
type ExecutionEngine struct {
	client *http.Client
	logger common.ILogger
}

// NewExecutionEngine creates an engine on the given HTTP client. A nil client selects
// the process-global tuned client; a nil logger discards everything.
func NewExecutionEngine(client *http.Client, logger common.ILogger) *ExecutionEngine {
	if logger == nil {
		logger = common.NoneLogger{}
	}
	if client == nil {
		client = common.GetGlobalHTTPClient(logger)
	}
	return &ExecutionEngine{client: client, logger: logger}
}

// Logger exposes the engine's logger so operation descriptors can share it.
func (e *ExecutionEngine) Logger() common.ILogger { return e.logger }

// Execute runs one logical operation to a terminal outcome. It blocks on the calling
// goroutine; the only suspension points are network I/O and the inter-retry sleep, both
// bounded by the remaining execution budget and by ctx.
//
// Terminal failures are returned as *StorageError carrying the full attempt history.
// The one exception is RetryPolicyNone, which surfaces the single attempt's original
// error untranslated so the caller can handle it precisely.
func Execute[T any](ctx context.Context, e *ExecutionEngine, req *StorageRequest[T], options RequestOptions, opCtx *OperationContext) (T, error) {
	var zero T

	if err := validate(req); err != nil {
		return zero, err // argument errors fail fast; nothing was attempted
	}
	options = options.defaults()
	if opCtx == nil {
		opCtx = NewOperationContext()
	}

	mode := options.LocationMode
	if req.LocationMode.fixed() {
		// the operation's own semantics pin the location; the engine never widens it
		mode = req.LocationMode
	}

	expiry, haveExpiry := computeExpiry(options.MaxExecutionTime)
	state := req.InitialState

	location, err := nextLocation(mode, req.Uri, 0, false, &state)
	if err != nil {
		terminal := newStorageError(err, nil, nil, "could not resolve a target endpoint", opCtx.resultsSnapshot())
		completed(opCtx, terminal)
		return zero, terminal
	}

	for try := int32(1); ; try++ {
		// (a) budget and cancellation checkpoints share the same spots
		if err := ctx.Err(); err != nil {
			terminal := newStorageError(err, nil, nil, "the operation was canceled", opCtx.resultsSnapshot())
			completed(opCtx, terminal)
			return zero, terminal
		}
		if hasExpired(expiry, haveExpiry, 0) {
			terminal := terminalTimeout(opCtx)
			completed(opCtx, terminal)
			return zero, terminal
		}

		tryTimeout := options.Retry.TryTimeout
		if haveExpiry {
			left, err := remaining(expiry, haveExpiry)
			if err != nil {
				terminal := terminalTimeout(opCtx)
				completed(opCtx, terminal)
				return zero, terminal
			}
			if left < tryTimeout {
				tryTimeout = left // one in-flight attempt must not outlive the budget
			}
		}

		state.BytesTransferred = 0

		// (c) build, decorate, transform, sign. Failures here are local: the request is
		// never sent, no per-attempt event fires, and no attempt is recorded.
		httpReq, err := buildAndSign(ctx, req, location, &state, opCtx)
		if err != nil {
			e.logger.Log(common.LogError, fmt.Sprintf("%s: try=%d failed before transmission: %v", opCtx.ClientRequestID(), try, err))
			terminal := newStorageError(err, nil, nil, "the request could not be built or signed", opCtx.resultsSnapshot())
			completed(opCtx, terminal)
			return zero, terminal
		}

		// (d) transmit
		opCtx.sendingRequest.fire(SendingRequestEvent{Request: httpReq, TryNumber: try})

		tctx, cancelTry := context.WithTimeout(ctx, tryTimeout)
		start := time.Now()
		resp, sendErr := e.client.Do(httpReq.WithContext(tctx))

		result := RequestResult{
			StartTime:      start,
			TargetLocation: location,
		}

		var outcome Outcome[T]
		var errBody []byte
		if sendErr != nil {
			cancelTry()
			result.StopTime = time.Now()
			result.Err = sendErr
			if ctx.Err() != nil {
				opCtx.appendResult(result)
				terminal := newStorageError(ctx.Err(), nil, nil, "the operation was canceled", opCtx.resultsSnapshot())
				opCtx.requestCompleted.fire(RequestCompletedEvent{LastResult: result, Err: terminal})
				return zero, terminal
			}
			if isRetryableNetworkError(sendErr) {
				outcome = RetryableFailure[T](sendErr)
			} else {
				outcome = FatalFailure[T](sendErr)
			}
		} else {
			opCtx.responseReceived.fire(ResponseReceivedEvent{Request: httpReq, Response: resp})
			result.StatusCode = resp.StatusCode
			result.ServiceRequestID = resp.Header.Get("x-ms-request-id")

			// (e) classify, then let the operation consume the body on success
			outcome = req.Preprocess(resp, &state)
			if outcome.kind == outcomeSuccess && req.Postprocess != nil {
				processed, perr := req.Postprocess(resp, outcome.result, &state)
				switch {
				case perr == nil:
					outcome.result = processed
				case isRetryableNetworkError(perr):
					// the body died mid-stream; Recover repositions past what landed
					outcome = RetryableFailure[T](perr)
				default:
					// integrity and logic failures are terminal: the stream position
					// is itself suspect, so an in-place resume is unsafe
					outcome = FatalFailure[T](perr)
				}
			}
			if outcome.kind == outcomeSuccess {
				discard(resp)
			} else {
				errBody = readErrorBody(resp) // keep the structured error payload for translation
			}
			cancelTry()
			result.StopTime = time.Now()
			if outcome.kind != outcomeSuccess && outcome.err == nil {
				outcome.err = errors.Errorf("the service responded with status %d", resp.StatusCode)
			}
			result.Err = outcome.err
		}

		// (f) exactly one RequestResult per transmitted attempt
		opCtx.appendResult(result)

		if outcome.kind == outcomeSuccess {
			level := common.LogDebug
			if result.Duration() >= slowTryThreshold {
				level = common.LogWarning
			}
			e.logger.Log(level, fmt.Sprintf("%s: try=%d succeeded with status %d after %v",
				opCtx.ClientRequestID(), try, result.StatusCode, result.Duration()))
			opCtx.requestCompleted.fire(RequestCompletedEvent{LastResult: result})
			return outcome.result, nil
		}

		// (g) terminal or retry
		if options.Retry.Policy == RetryPolicyNone {
			// single-attempt semantics: surface the original, untranslated error
			opCtx.requestCompleted.fire(RequestCompletedEvent{LastResult: result, Err: outcome.err})
			return zero, outcome.err
		}

		if outcome.kind == outcomeFatal || try >= options.Retry.MaxTries {
			terminal := translate(outcome.err, resp, errBody, try, options.Retry.MaxTries, opCtx)
			opCtx.requestCompleted.fire(RequestCompletedEvent{LastResult: result, Err: terminal})
			return zero, terminal
		}

		delay := options.Retry.calcDelay(try + 1)
		if hasExpired(expiry, haveExpiry, delay) {
			// no point backing off past the budget
			terminal := terminalTimeout(opCtx)
			opCtx.requestCompleted.fire(RequestCompletedEvent{LastResult: result, Err: terminal})
			return zero, terminal
		}

		if req.Recover != nil {
			if rerr := req.Recover(&state, result); rerr != nil {
				terminal := newStorageError(rerr, nil, nil, "the operation could not recover for a retry", opCtx.resultsSnapshot())
				opCtx.requestCompleted.fire(RequestCompletedEvent{LastResult: result, Err: terminal})
				return zero, terminal
			}
		}

		nextLoc, lerr := nextLocation(mode, req.Uri, location, true, &state)
		if lerr != nil {
			terminal := newStorageError(lerr, nil, nil, "could not resolve a target endpoint for the retry", opCtx.resultsSnapshot())
			opCtx.requestCompleted.fire(RequestCompletedEvent{LastResult: result, Err: terminal})
			return zero, terminal
		}

		e.logger.Log(common.LogWarning, fmt.Sprintf("%s: try=%d failed (%v); next try=%d against %v after %v",
			opCtx.ClientRequestID(), try, outcome.err, try+1, nextLoc, delay))
		opCtx.retrying.fire(RetryingEvent{
			LastResult:    result,
			NextTryNumber: try + 1,
			NextLocation:  nextLoc,
			Backoff:       delay,
		})
		location = nextLoc

		select {
		case <-ctx.Done():
			terminal := newStorageError(ctx.Err(), nil, nil, "the operation was canceled", opCtx.resultsSnapshot())
			opCtx.requestCompleted.fire(RequestCompletedEvent{LastResult: result, Err: terminal})
			return zero, terminal
		case <-time.After(delay):
		}
	}
}

func validate[T any](req *StorageRequest[T]) error {
	if req == nil {
		return errors.New("a storage request is required")
	}
	if req.Uri.PrimaryUri() == nil && req.Uri.SecondaryUri() == nil {
		return errors.New("the storage request has no target URIs")
	}
	if req.Build == nil {
		return errors.New("the storage request has no Build hook")
	}
	if req.Preprocess == nil {
		return errors.New("the storage request has no Preprocess hook")
	}
	return nil
}

// buildAndSign runs the pre-transmission hooks in their fixed order: Build, SetHeaders,
// the engine's standard headers, URI transform, signature. Signed headers are final;
// nothing may touch the request after the credential signs it.
func buildAndSign[T any](ctx context.Context, req *StorageRequest[T], location StorageLocation, state *AttemptState, opCtx *OperationContext) (*http.Request, error) {
	endpoint := req.Uri.UriForLocation(location)
	if endpoint == nil {
		return nil, errors.Errorf("no URI is configured for the %v location", location)
	}
	ep := *endpoint // hooks get a copy; the configured pair stays immutable

	httpReq, err := req.Build(ctx, &ep, state)
	if err != nil {
		return nil, errors.Wrap(err, "building the request failed")
	}
	if httpReq == nil {
		return nil, errors.New("the Build hook returned no request")
	}

	if req.SetHeaders != nil {
		if err := req.SetHeaders(httpReq, state); err != nil {
			return nil, errors.Wrap(err, "setting request headers failed")
		}
	}

	httpReq.Header.Set("x-ms-version", ServiceVersion)
	httpReq.Header.Set("x-ms-client-request-id", opCtx.ClientRequestID())
	httpReq.Header.Set("x-ms-date", time.Now().UTC().Format(http.TimeFormat))

	if req.Credential != nil {
		transformed, err := req.Credential.TransformURI(httpReq.URL)
		if err != nil {
			return nil, errors.Wrap(err, "transforming the request URI failed")
		}
		httpReq.URL = transformed
		httpReq.Host = transformed.Host
		if err := req.Credential.SignRequest(httpReq); err != nil {
			return nil, errors.Wrap(err, "signing the request failed")
		}
	}

	return httpReq, nil
}

func terminalTimeout(opCtx *OperationContext) *StorageError {
	return &StorageError{
		message: ErrMaximumExecutionTimeExceeded.message,
		timeout: true,
		cause:   ErrMaximumExecutionTimeExceeded,
		results: opCtx.resultsSnapshot(),
	}
}

// translate wraps the final attempt's error into the single translated error type,
// preserving status, service code, extended details, and the full attempt history.
func translate(cause error, resp *http.Response, body []byte, try, maxTries int32, opCtx *OperationContext) error {
	msg := "the request failed"
	if try >= maxTries {
		msg = fmt.Sprintf("the request failed after %d tries", try)
	}
	return newStorageError(cause, resp, body, msg, opCtx.resultsSnapshot())
}

// completed fires the terminal event with whatever attempt history exists. LastResult
// stays zero-valued when nothing was transmitted.
func completed(opCtx *OperationContext, err error) {
	var last RequestResult
	if rs := opCtx.resultsSnapshot(); len(rs) > 0 {
		last = rs[len(rs)-1]
	}
	opCtx.requestCompleted.fire(RequestCompletedEvent{LastResult: last, Err: err})
}

// discard drains a little of any unread body and closes it so the connection can be
// pooled.
func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, drainLimit)
	_ = resp.Body.Close()
}

// readErrorBody captures up to drainLimit bytes of a failed response so the structured
// error payload survives into translation, then closes the body for connection reuse.
func readErrorBody(resp *http.Response) []byte {
	if resp == nil || resp.Body == nil {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, drainLimit))
	_ = resp.Body.Close()
	return b
}
