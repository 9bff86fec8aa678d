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
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// RetryPolicy tells the engine what kind of retry policy to use. See the RetryPolicy* constants.
type RetryPolicy int32

const (
	// RetryPolicyExponential tells the engine to use an exponential back-off retry policy.
	RetryPolicyExponential RetryPolicy = 0

	// RetryPolicyFixed tells the engine to use a fixed back-off retry policy.
	RetryPolicyFixed RetryPolicy = 1

	// RetryPolicyNone tells the engine to make exactly one attempt and surface its
	// outcome untranslated, whatever the failure classification. Used for operations the
	// caller knows are not idempotent, and in tests.
	RetryPolicyNone RetryPolicy = 2
)

// RetryOptions configures the retry policy's behavior. Options values are immutable once
// handed to the engine; the engine re-derives everything it needs per attempt, so one
// options value is safe to share across concurrent operations.
type RetryOptions struct {
	// Policy tells the engine what kind of retry policy to use. See the RetryPolicy* constants.
	// A value of zero means that you accept our default policy.
	Policy RetryPolicy

	// MaxTries specifies the maximum number of attempts an operation will be tried before
	// producing an error (0=default). A value of 1 means 1 try and no retries.
	MaxTries int32

	// TryTimeout indicates the maximum time allowed for any single try of an HTTP request.
	// A value of zero means that you accept our default timeout. NOTE: when transferring
	// large amounts of data, the default will probably not be sufficient; override it
	// based on the bandwidth available and proximity to the service.
	TryTimeout time.Duration

	// RetryDelay specifies the amount of delay to use before retrying an operation (0=default).
	// The delay increases (exponentially or linearly) with each retry up to a maximum
	// specified by MaxRetryDelay. If you specify 0, then you must also specify 0 for MaxRetryDelay.
	RetryDelay time.Duration

	// MaxRetryDelay specifies the maximum delay allowed before retrying an operation (0=default).
	// If you specify 0, then you must also specify 0 for RetryDelay.
	MaxRetryDelay time.Duration
}

func (o RetryOptions) defaults() RetryOptions {
	if o.MaxTries < 0 {
		panic("MaxTries must be >= 0")
	}
	if o.TryTimeout < 0 || o.RetryDelay < 0 || o.MaxRetryDelay < 0 {
		panic("TryTimeout, RetryDelay, and MaxRetryDelay must all be >= 0")
	}
	if o.RetryDelay > o.MaxRetryDelay && o.MaxRetryDelay != 0 {
		panic("RetryDelay must be <= MaxRetryDelay")
	}

	IfDefault := func(current *time.Duration, desired time.Duration) {
		if *current == time.Duration(0) {
			*current = desired
		}
	}

	// Set defaults if unspecified
	if o.MaxTries == 0 {
		o.MaxTries = 4
	}
	if o.Policy == RetryPolicyNone {
		o.MaxTries = 1
	}
	switch o.Policy {
	case RetryPolicyExponential:
		IfDefault(&o.TryTimeout, 1*time.Minute)
		IfDefault(&o.RetryDelay, 4*time.Second)
		IfDefault(&o.MaxRetryDelay, 120*time.Second)

	case RetryPolicyFixed:
		IfDefault(&o.TryTimeout, 1*time.Minute)
		IfDefault(&o.RetryDelay, 30*time.Second)
		IfDefault(&o.MaxRetryDelay, 120*time.Second)

	case RetryPolicyNone:
		IfDefault(&o.TryTimeout, 1*time.Minute)
	}
	return o
}

// calcDelay computes the backoff before the given try (try is >=1; never 0).
func (o RetryOptions) calcDelay(try int32) time.Duration {
	pow := func(number int64, exponent int32) int64 { // pow is nested helper function
		var result int64 = 1
		for n := int32(0); n < exponent; n++ {
			result *= number
		}
		return result
	}

	delay := time.Duration(0)
	switch o.Policy {
	case RetryPolicyExponential:
		delay = time.Duration(pow(2, try-1)-1) * o.RetryDelay

	case RetryPolicyFixed:
		if try > 1 { // Any try after the 1st uses the fixed delay
			delay = o.RetryDelay
		}
	}

	// Introduce some jitter:  [0.0, 1.0) / 2 = [0.0, 0.5) + 0.8 = [0.8, 1.3)
	// For casts and rounding - be careful, as per https://github.com/golang/go/issues/20757
	delay = time.Duration(float32(delay) * (rand.Float32()/2 + 0.8)) // NOTE: We want math/rand; not crypto/rand
	if delay > o.MaxRetryDelay {
		delay = o.MaxRetryDelay
	}
	return delay
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// isRetryableStatusCode classifies a received response. 5xx is transient except for the
// not-implemented family; 408 and 429 are the only 4xx codes the service returns for
// conditions that clear on their own. Everything else 4xx is a business-logic outcome
// and must surface immediately.
func isRetryableStatusCode(statusCode int) bool {
	switch {
	case statusCode == http.StatusRequestTimeout: // 408
		return true
	case statusCode == http.StatusTooManyRequests: // 429
		return true
	case statusCode >= 500 && statusCode != http.StatusNotImplemented && statusCode != http.StatusHTTPVersionNotSupported:
		return true
	default:
		return false
	}
}

// isRetryableNetworkError classifies a failure that produced no response at all.
// Caller cancellation is deliberate and never retried. A deadline error reaching this
// function came from the per-try timeout (the engine surfaces the caller's context in
// its own terms before classifying), so it counts as an ordinary timeout and is retried.
func isRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// String matching is a last resort, but several dial/reset failures reach us only as
	// wrapped OS errors with no stable type.
	errStr := strings.ToLower(err.Error())
	networkErrors := []string{
		"dial tcp",
		"timeout",
		"connection reset by peer",
		"connection refused",
		"network is unreachable",
		"connection timed out",
		"temporary failure in name resolution",
		"no route to host",
		"http: server closed idle connection",
	}
	for _, netErr := range networkErrors {
		if strings.Contains(errStr, netErr) {
			return true
		}
	}

	return false
}
