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
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/wastore/azure-storage-core-go/common"
	"github.com/wastore/azure-storage-core-go/cred"
)

// DownloadResult describes a completed download: the resource's version and integrity
// metadata plus how many bytes were written to the sink across all attempts.
type DownloadResult struct {
	ETag          string
	LastModified  time.Time
	ContentLength int64
	ContentMD5    []byte // the service-stored hash, when present
	BytesWritten  int64
}

// NewRangeDownloadRequest builds a resumable GET. The body is streamed to sink; if an
// attempt dies mid-body, the next attempt resumes at the first unwritten byte with an
// If-Match condition pinning the version already partially written, on the location
// that served the earlier bytes. count < 0 downloads to the end of the resource.
//
// When the download starts at offset zero with no length cap, the received bytes are
// MD5-checked against the service-stored hash per validation. The running hash survives
// resumption because every retry continues exactly where the sink left off.
func NewRangeDownloadRequest(uri StorageUri, credential cred.Credential, offset, count int64, sink io.Writer, validation common.HashValidationOption, logger common.ILogger) *StorageRequest[DownloadResult] {
	if logger == nil {
		logger = common.NoneLogger{}
	}
	wholeResource := offset == 0 && count < 0

	var md5Hasher hash.Hash
	dest := sink
	if wholeResource && validation != common.EHashValidationOption.NoCheck() {
		md5Hasher = md5.New()
		dest = io.MultiWriter(sink, md5Hasher)
	}

	var total int64 // bytes written to the sink across all attempts

	return &StorageRequest[DownloadResult]{
		Uri:          uri,
		LocationMode: ELocationMode.PrimaryThenSecondary(),
		Credential:   credential,
		InitialState: AttemptState{Offset: offset, Count: count},

		Build: func(ctx context.Context, endpoint *url.URL, state *AttemptState) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Range", rangeHeaderValue(state.Offset, state.Count))
			if state.ETag != "" {
				req.Header.Set("If-Match", state.ETag)
			}
			return req, nil
		},

		Preprocess: func(resp *http.Response, state *AttemptState) Outcome[DownloadResult] {
			switch {
			case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
				r := DownloadResult{
					ETag:          resp.Header.Get("ETag"),
					ContentLength: resp.ContentLength,
				}
				if md := resp.Header.Get("x-ms-blob-content-md5"); md != "" {
					r.ContentMD5, _ = base64.StdEncoding.DecodeString(md)
				} else if md := resp.Header.Get("Content-MD5"); md != "" {
					r.ContentMD5, _ = base64.StdEncoding.DecodeString(md)
				}
				if lm := resp.Header.Get("Last-Modified"); lm != "" {
					r.LastModified, _ = time.Parse(http.TimeFormat, lm)
				}
				if r.ETag != "" {
					state.ETag = r.ETag // pin the version for any resumed attempt
				}
				return Success(r)
			case resp.StatusCode == http.StatusPreconditionFailed:
				// the resource changed underneath a resumed download; the bytes already
				// written no longer belong to any single version
				return FatalFailure[DownloadResult](errors.Errorf("the resource was modified while being downloaded (ETag %s no longer current)", state.ETag))
			case isRetryableStatusCode(resp.StatusCode):
				return RetryableFailure[DownloadResult](errors.Errorf("the service responded with status %d", resp.StatusCode))
			default:
				return FatalFailure[DownloadResult](errors.Errorf("the service responded with status %d", resp.StatusCode))
			}
		},

		Postprocess: func(resp *http.Response, result DownloadResult, state *AttemptState) (DownloadResult, error) {
			n, err := io.Copy(io.MultiWriter(dest, attemptCounter{state}), resp.Body)
			total += n
			result.BytesWritten = total
			if err != nil {
				if isRetryableNetworkError(err) {
					// keep the connection-level flavor so the engine retries and Recover
					// can advance past the bytes that did land
					return result, retryableBodyError{err}
				}
				return result, errors.Wrap(err, "reading the response body failed")
			}
			if md5Hasher != nil && len(result.ContentMD5) > 0 {
				c := &md5Comparer{
					expected:         result.ContentMD5,
					actualAsReceived: md5Hasher.Sum(nil),
					validationOption: validation,
					logger:           logger,
				}
				if cerr := c.Check(); cerr != nil {
					return result, cerr
				}
			}
			return result, nil
		},

		Recover: func(state *AttemptState, last RequestResult) error {
			if state.BytesTransferred == 0 {
				return nil
			}
			state.Offset += state.BytesTransferred
			if state.Count >= 0 {
				if state.BytesTransferred > state.Count {
					return errors.New("received more bytes than were requested")
				}
				state.Count -= state.BytesTransferred
			}
			loc := last.TargetLocation
			state.LockedLocation = &loc
			return nil
		},
	}
}

func rangeHeaderValue(offset, count int64) string {
	if count < 0 {
		return fmt.Sprintf("bytes=%d-", offset)
	}
	return fmt.Sprintf("bytes=%d-%d", offset, offset+count-1)
}

// attemptCounter tracks bytes landed in the current attempt so Recover can reposition.
type attemptCounter struct{ state *AttemptState }

func (c attemptCounter) Write(p []byte) (int, error) {
	c.state.BytesTransferred += int64(len(p))
	return len(p), nil
}

// retryableBodyError marks a mid-body connection failure as transient so the engine
// resumes rather than aborting the download.
type retryableBodyError struct{ cause error }

func (e retryableBodyError) Error() string { return e.cause.Error() }
func (e retryableBodyError) Unwrap() error { return e.cause }
func (e retryableBodyError) Timeout() bool { return true }
func (e retryableBodyError) Temporary() bool { return true }
