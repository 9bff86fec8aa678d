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

package cred

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// SASCredential carries a fixed shared-access-signature token and merges it into each
// request URI. It never signs per request.
type SASCredential struct {
	token url.Values
}

// NewSASCredential parses the given SAS token (with or without a leading '?').
// The token must at minimum carry a signature ('sig') parameter.
func NewSASCredential(sasToken string) (*SASCredential, error) {
	trimmed := strings.TrimPrefix(sasToken, "?")
	values, err := url.ParseQuery(trimmed)
	if err != nil {
		return nil, errors.Wrap(err, "sas: token is not a valid query string")
	}
	if values.Get("sig") == "" {
		return nil, errors.New("sas: token carries no signature")
	}
	return &SASCredential{token: values}, nil
}

// TransformURI merges the SAS token's query parameters into the URI, preserving any
// pre-existing query parameters. On a key collision (api-version being the common case)
// the token's value wins: the signature was computed over the token's values, so letting
// request-supplied values override them would invalidate the signature server-side.
func (c *SASCredential) TransformURI(u *url.URL) (*url.URL, error) {
	merged := u.Query()
	for k, vs := range c.token {
		merged.Del(k)
		for _, v := range vs {
			merged.Add(k, v)
		}
	}
	out := *u
	out.RawQuery = merged.Encode()
	return &out, nil
}

// SignRequest is a no-op; the token on the URI is the authentication.
func (c *SASCredential) SignRequest(*http.Request) error { return nil }
