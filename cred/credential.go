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

// Package cred implements the credential types accepted by the execution engine: shared
// key (full and lite canonicalization), shared access signatures, and anonymous access.
// Credentials are immutable after construction and may be shared freely across
// concurrently executing operations.
package cred

import (
	"net/http"
	"net/url"
)

// Credential authenticates outgoing requests. Exactly one of the two hooks does real work
// for any given credential type: shared key credentials sign each request, SAS credentials
// rewrite the target URI once, and anonymous credentials do neither.
type Credential interface {
	// TransformURI rewrites the request URI before the request is built. Credentials that
	// do not transform return the input unchanged.
	TransformURI(u *url.URL) (*url.URL, error)

	// SignRequest attaches an Authorization header (or equivalent) to the built request.
	// A signing failure is fatal; the engine never retries it.
	SignRequest(req *http.Request) error
}

// NewAnonymousCredential creates a credential for use with HTTP(S) requests that read
// publicly-readable resources or for use with Shared Access Signatures already baked
// into the target URI.
func NewAnonymousCredential() Credential {
	return anonymousCredential{} // stateless
}

type anonymousCredential struct{}

func (anonymousCredential) TransformURI(u *url.URL) (*url.URL, error) { return u, nil }

func (anonymousCredential) SignRequest(*http.Request) error { return nil }
