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
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wastore/azure-storage-core-go/common"
)

func md5Base64(b []byte) string {
	sum := md5.Sum(b)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func TestRangeDownloadWholeResource(t *testing.T) {
	a := assert.New(t)
	payload := []byte("the quick brown fox jumps over the lazy dog")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.Equal("bytes=0-", r.Header.Get("Range"))
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("x-ms-blob-content-md5", md5Base64(payload))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	var sink bytes.Buffer
	req := NewRangeDownloadRequest(mustStorageUri(t, server.URL, ""), nil, 0, -1, &sink,
		common.EHashValidationOption.FailIfDifferent(), nil)

	eng := NewExecutionEngine(server.Client(), nil)
	result, err := Execute(context.Background(), eng, req, RequestOptions{Retry: fastRetry(4)}, nil)
	a.NoError(err)
	a.Equal(payload, sink.Bytes())
	a.Equal(int64(len(payload)), result.BytesWritten)
	a.Equal(`"v1"`, result.ETag)
}

func TestRangeDownloadBoundedRange(t *testing.T) {
	a := assert.New(t)
	payload := []byte("0123456789abcdef")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.Equal("bytes=5-14", r.Header.Get("Range"))
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload[5:15])
	}))
	defer server.Close()

	var sink bytes.Buffer
	req := NewRangeDownloadRequest(mustStorageUri(t, server.URL, ""), nil, 5, 10, &sink,
		common.EHashValidationOption.NoCheck(), nil)

	eng := NewExecutionEngine(server.Client(), nil)
	result, err := Execute(context.Background(), eng, req, RequestOptions{Retry: fastRetry(4)}, nil)
	a.NoError(err)
	a.Equal(payload[5:15], sink.Bytes())
	a.Equal(int64(10), result.BytesWritten)
}

func TestRangeDownloadResumesAfterBrokenBody(t *testing.T) {
	a := assert.New(t)
	payload := []byte("a body long enough to be cut in half and resumed")
	cut := 20

	var hits int32
	var secondRange, secondIfMatch string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		try := atomic.AddInt32(&hits, 1)
		if try == 1 {
			// advertise the full length, deliver a prefix, then kill the connection
			w.Header().Set("ETag", `"v7"`)
			w.Header().Set("x-ms-blob-content-md5", md5Base64(payload))
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(payload[:cut])
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			panic(http.ErrAbortHandler)
		}
		secondRange = r.Header.Get("Range")
		secondIfMatch = r.Header.Get("If-Match")
		w.Header().Set("ETag", `"v7"`)
		w.Header().Set("x-ms-blob-content-md5", md5Base64(payload))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload[cut:])
	}))
	defer server.Close()

	var sink bytes.Buffer
	req := NewRangeDownloadRequest(mustStorageUri(t, server.URL, ""), nil, 0, -1, &sink,
		common.EHashValidationOption.FailIfDifferent(), nil)

	eng := NewExecutionEngine(server.Client(), nil)
	opCtx := NewOperationContext()
	result, err := Execute(context.Background(), eng, req, RequestOptions{Retry: fastRetry(4)}, opCtx)
	a.NoError(err)

	// the sink holds exactly the payload, with no repeated or missing bytes
	a.Equal(payload, sink.Bytes())
	a.Equal(int64(len(payload)), result.BytesWritten)

	// the resumed attempt started at the first unwritten byte, pinned to the version
	a.Equal(fmt.Sprintf("bytes=%d-", cut), secondRange)
	a.Equal(`"v7"`, secondIfMatch)
	a.Len(opCtx.RequestResults(), 2)
}

func TestRangeDownloadResumesAfterStalledBody(t *testing.T) {
	a := assert.New(t)
	payload := []byte("a body long enough to stall part way through and resume")
	cut := 24

	var hits int32
	var secondRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		try := atomic.AddInt32(&hits, 1)
		if try == 1 {
			// deliver a prefix, then go quiet until the per-try timeout fires
			w.Header().Set("ETag", `"v3"`)
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(payload[:cut])
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			time.Sleep(500 * time.Millisecond)
			return
		}
		secondRange = r.Header.Get("Range")
		w.Header().Set("ETag", `"v3"`)
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload[cut:])
	}))
	defer server.Close()

	var sink bytes.Buffer
	req := NewRangeDownloadRequest(mustStorageUri(t, server.URL, ""), nil, 0, -1, &sink,
		common.EHashValidationOption.NoCheck(), nil)

	eng := NewExecutionEngine(server.Client(), nil)
	opCtx := NewOperationContext()
	options := RequestOptions{Retry: RetryOptions{
		Policy:        RetryPolicyFixed,
		MaxTries:      4,
		TryTimeout:    150 * time.Millisecond,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 2 * time.Millisecond,
	}}
	result, err := Execute(context.Background(), eng, req, options, opCtx)
	a.NoError(err)

	// a try that stalled mid-body was retried from the first unwritten byte
	a.Equal(payload, sink.Bytes())
	a.Equal(int64(len(payload)), result.BytesWritten)
	a.Equal(fmt.Sprintf("bytes=%d-", cut), secondRange)
	a.Len(opCtx.RequestResults(), 2)
}

func TestRangeDownloadPreconditionFailedIsFatal(t *testing.T) {
	a := assert.New(t)

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusPreconditionFailed)
	}))
	defer server.Close()

	var sink bytes.Buffer
	req := NewRangeDownloadRequest(mustStorageUri(t, server.URL, ""), nil, 0, -1, &sink,
		common.EHashValidationOption.NoCheck(), nil)

	eng := NewExecutionEngine(server.Client(), nil)
	_, err := Execute(context.Background(), eng, req, RequestOptions{Retry: fastRetry(4)}, nil)
	a.Error(err)
	a.Equal(int32(1), atomic.LoadInt32(&hits)) // fatal on the spot, no retries
}

func TestRangeDownloadMd5Mismatch(t *testing.T) {
	a := assert.New(t)
	payload := []byte("these are not the bytes the hash was computed over")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-MD5", md5Base64([]byte("completely different content")))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	var sink bytes.Buffer
	req := NewRangeDownloadRequest(mustStorageUri(t, server.URL, ""), nil, 0, -1, &sink,
		common.EHashValidationOption.FailIfDifferent(), nil)

	eng := NewExecutionEngine(server.Client(), nil)
	_, err := Execute(context.Background(), eng, req, RequestOptions{Retry: fastRetry(4)}, nil)
	a.Error(err)
	a.ErrorIs(err, ErrMd5Mismatch)
}

func TestRangeDownloadMd5MismatchLogOnly(t *testing.T) {
	a := assert.New(t)
	payload := []byte("content")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-MD5", md5Base64([]byte("other")))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	var sink bytes.Buffer
	req := NewRangeDownloadRequest(mustStorageUri(t, server.URL, ""), nil, 0, -1, &sink,
		common.EHashValidationOption.LogOnly(), nil)

	eng := NewExecutionEngine(server.Client(), nil)
	_, err := Execute(context.Background(), eng, req, RequestOptions{Retry: fastRetry(4)}, nil)
	a.NoError(err)
	a.Equal(payload, sink.Bytes())
}

func TestRangeDownloadRecoverMath(t *testing.T) {
	a := assert.New(t)

	req := NewRangeDownloadRequest(StorageUri{}, nil, 0, 100, &bytes.Buffer{},
		common.EHashValidationOption.NoCheck(), nil)

	state := AttemptState{Offset: 10, Count: 90, BytesTransferred: 30}
	err := req.Recover(&state, RequestResult{TargetLocation: EStorageLocation.Secondary()})
	a.NoError(err)
	a.Equal(int64(40), state.Offset)
	a.Equal(int64(60), state.Count)
	a.NotNil(state.LockedLocation)
	a.Equal(EStorageLocation.Secondary(), *state.LockedLocation)

	// a zero-byte attempt moves nothing and pins nothing
	state = AttemptState{Offset: 10, Count: 90}
	err = req.Recover(&state, RequestResult{})
	a.NoError(err)
	a.Equal(int64(10), state.Offset)
	a.Nil(state.LockedLocation)
}
