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
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
)

// ServiceCodeType is a string identifying a storage service error.
// For more information, see https://docs.microsoft.com/en-us/rest/api/storageservices/status-and-error-codes2
type ServiceCodeType string

// StorageError is the single translated error type every terminal failure is wrapped
// into. It carries the HTTP status (if a response was received), the service's error
// code string, extended error details when the service returned a structured error body,
// and the full per-attempt history for diagnostics.
//
// It implements net.Error's Temporary and Timeout so existing code that sniffs those
// keeps working; by the time a StorageError reaches the caller the retry loop has
// already been exhausted, so Temporary is about classification, not advice.
type StorageError struct {
	message     string
	serviceCode ServiceCodeType
	statusCode  int
	details     map[string]string
	cause       error
	results     []RequestResult
	timeout     bool
}

func newStorageError(cause error, response *http.Response, body []byte, message string, results []RequestResult) *StorageError {
	se := &StorageError{
		message: message,
		cause:   cause,
		results: results,
	}
	if response != nil {
		se.statusCode = response.StatusCode
		se.serviceCode = ServiceCodeType(response.Header.Get("x-ms-error-code"))
	}
	se.parseBody(body)
	return se
}

// parseBody pulls the pieces out of a storage XML error payload: Code becomes the
// service code when the x-ms-error-code header did not already supply one, and Message
// plus any additional elements land in the details map. Anything unparseable is kept
// as far as the decoder got; a truncated or non-XML body never fails translation.
func (e *StorageError) parseBody(body []byte) {
	if len(body) == 0 {
		return
	}
	d := xml.NewDecoder(bytes.NewReader(body))
	elem := ""
	for {
		t, err := d.Token()
		if err != nil {
			break
		}
		switch tt := t.(type) {
		case xml.StartElement:
			elem = tt.Name.Local
		case xml.EndElement:
			elem = ""
		case xml.CharData:
			value := string(bytes.TrimSpace(tt))
			if value == "" {
				continue
			}
			switch elem {
			case "", "Error":
				// whitespace between elements
			case "Code":
				if e.serviceCode == "" {
					e.serviceCode = ServiceCodeType(value)
				}
			default:
				if e.details == nil {
					e.details = map[string]string{}
				}
				e.details[elem] = value
			}
		}
	}
}

// ServiceCode returns the service-provided error code, e.g. "BlobNotFound". Empty when
// the failure never produced a response.
func (e *StorageError) ServiceCode() ServiceCodeType { return e.serviceCode }

// StatusCode returns the HTTP status of the final attempt, or zero when no response was
// received.
func (e *StorageError) StatusCode() int { return e.statusCode }

// RequestResults returns the per-attempt history of the failed operation.
func (e *StorageError) RequestResults() []RequestResult { return e.results }

func (e *StorageError) Unwrap() error { return e.cause }

func (e *StorageError) Error() string {
	b := &bytes.Buffer{}
	fmt.Fprintf(b, "===== RESPONSE ERROR (ServiceCode=%s) =====\n", e.serviceCode)
	fmt.Fprintf(b, "Description=%s, Details: ", e.message)
	if len(e.details) == 0 {
		b.WriteString("(none)\n")
	} else {
		b.WriteRune('\n')
		keys := make([]string, 0, len(e.details))
		// Alphabetize the details
		for k := range e.details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, "   %s: %+v\n", k, e.details[k])
		}
	}
	if e.statusCode != 0 {
		fmt.Fprintf(b, "StatusCode=%d, Tries=%d\n", e.statusCode, len(e.results))
	}
	if e.cause != nil {
		fmt.Fprintf(b, "Cause: %v\n", e.cause)
	}
	return b.String()
}

// Temporary returns true if the error occurred due to a temporary condition (including
// an HTTP status of 500 or 503).
func (e *StorageError) Temporary() bool {
	if e.statusCode == http.StatusInternalServerError || e.statusCode == http.StatusServiceUnavailable {
		return true
	}
	return isRetryableNetworkError(e.cause)
}

// Timeout reports whether the operation failed because its execution budget expired.
func (e *StorageError) Timeout() bool { return e.timeout }
