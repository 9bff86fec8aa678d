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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// SharedKeyCredential signs each request with the storage account's key using the full
// shared key canonicalization. Use NewSharedKeyLiteCredential for the reduced legacy
// canonicalization that the Table service historically required.
type SharedKeyCredential struct {
	accountName string
	accountKey  []byte
	lite        bool
}

// NewSharedKeyCredential creates a credential that signs with the full SharedKey scheme.
// The key must be the base64-encoded account key as shown in the portal; a malformed key
// or empty account name is rejected here so that signing itself can never fail mid-retry.
func NewSharedKeyCredential(accountName, accountKey string) (*SharedKeyCredential, error) {
	if accountName == "" {
		return nil, errors.New("sharedkey: account name must not be empty")
	}
	key, err := base64.StdEncoding.DecodeString(accountKey)
	if err != nil {
		return nil, errors.Wrap(err, "sharedkey: account key is not valid base64")
	}
	return &SharedKeyCredential{accountName: accountName, accountKey: key}, nil
}

// NewSharedKeyLiteCredential is like NewSharedKeyCredential but signs with the reduced
// SharedKeyLite canonicalization (fewer standard headers participate in the signature).
func NewSharedKeyLiteCredential(accountName, accountKey string) (*SharedKeyCredential, error) {
	c, err := NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}
	c.lite = true
	return c, nil
}

// AccountName returns the name of the account this credential signs for.
func (c *SharedKeyCredential) AccountName() string { return c.accountName }

// TransformURI is the identity transform; shared key auth never rewrites the URI.
func (c *SharedKeyCredential) TransformURI(u *url.URL) (*url.URL, error) { return u, nil }

// SignRequest computes the canonicalized string for the request, HMAC-SHA256s it with
// the account key, and sets the Authorization header. The request must already carry its
// x-ms-date header; signing is deterministic given the request's headers and URL.
func (c *SharedKeyCredential) SignRequest(req *http.Request) error {
	if req.Header.Get(headerXMSDate) == "" && req.Header.Get("Date") == "" {
		return errors.New("sharedkey: request has neither x-ms-date nor Date header; refusing to produce an unverifiable signature")
	}

	stringToSign := c.buildStringToSign(req)
	h := hmac.New(sha256.New, c.accountKey)
	h.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(h.Sum(nil))

	scheme := "SharedKey"
	if c.lite {
		scheme = "SharedKeyLite"
	}
	req.Header.Set("Authorization", scheme+" "+c.accountName+":"+signature)
	return nil
}

const headerXMSDate = "x-ms-date"

// header names participating in full canonicalization, in signature order
var sharedKeySignedHeaders = []string{
	"Content-Encoding",
	"Content-Language",
	"Content-Length",
	"Content-MD5",
	"Content-Type",
	"Date",
	"If-Modified-Since",
	"If-Match",
	"If-None-Match",
	"If-Unmodified-Since",
	"Range",
}

func (c *SharedKeyCredential) buildStringToSign(req *http.Request) string {
	headerValue := func(name string) string {
		v := req.Header.Get(name)
		// Per the service rules an explicit zero Content-Length signs as the empty string.
		if name == "Content-Length" && v == "0" {
			v = ""
		}
		// When x-ms-date is present the standard Date header must sign as empty, so the
		// signature can't be replayed with a different date.
		if name == "Date" && req.Header.Get(headerXMSDate) != "" {
			v = ""
		}
		return v
	}

	sb := strings.Builder{}
	sb.WriteString(req.Method)
	sb.WriteByte('\n')

	if c.lite {
		for _, name := range []string{"Content-MD5", "Content-Type", "Date"} {
			sb.WriteString(headerValue(name))
			sb.WriteByte('\n')
		}
	} else {
		for _, name := range sharedKeySignedHeaders {
			sb.WriteString(headerValue(name))
			sb.WriteByte('\n')
		}
	}

	sb.WriteString(c.canonicalizedHeaders(req))
	sb.WriteString(c.canonicalizedResource(req))
	return sb.String()
}

// canonicalizedHeaders lists every x-ms-* header, lowercased and lexicographically sorted,
// as "name:value\n" lines.
func (c *SharedKeyCredential) canonicalizedHeaders(req *http.Request) string {
	var names []string
	for name := range req.Header {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-ms-") {
			names = append(names, lower)
		}
	}
	sort.Strings(names)

	sb := strings.Builder{}
	for _, name := range names {
		values := req.Header.Values(http.CanonicalHeaderKey(name))
		sb.WriteString(name)
		sb.WriteByte(':')
		sb.WriteString(strings.TrimSpace(strings.Join(values, ",")))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// canonicalizedResource is "/accountname/path" followed, for the full scheme, by each
// query parameter as "\nkey:v1,v2" with lowercased sorted keys and sorted values.
// The lite scheme only appends the comp parameter, for compatibility with the older
// service behavior.
func (c *SharedKeyCredential) canonicalizedResource(req *http.Request) string {
	sb := strings.Builder{}
	sb.WriteByte('/')
	sb.WriteString(c.accountName)
	if req.URL.Path == "" {
		sb.WriteByte('/')
	} else {
		sb.WriteString(req.URL.Path)
	}

	query := req.URL.Query()
	if c.lite {
		if comp := query.Get("comp"); comp != "" {
			sb.WriteString("?comp=")
			sb.WriteString(comp)
		}
		return sb.String()
	}

	lowered := make(map[string][]string, len(query))
	for k, vs := range query {
		lk := strings.ToLower(k)
		lowered[lk] = append(lowered[lk], vs...)
	}
	keys := make([]string, 0, len(lowered))
	for k := range lowered {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values := lowered[k]
		sort.Strings(values)
		sb.WriteByte('\n')
		sb.WriteString(k)
		sb.WriteByte(':')
		sb.WriteString(strings.Join(values, ","))
	}
	return sb.String()
}
