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

package common

import (
	"regexp"
	"strings"
)

// SigAzure is the query-string key that carries the signature of an Azure SAS token.
const SigAzure = "sig"

// LogSanitizer removes credential-like material from a log message before it is written.
type LogSanitizer interface {
	SanitizeLogMessage(msg string) string
}

// storageLogSanitizer performs string-replacement based log redaction.
// This serves as a backstop, to help make sure that secrets don't get logged.
// The request-building code already redacts known headers and query parameters, but
// signatures can still end up inside error text (e.g. the URL echoed back by an HTTP
// error), and if those errors are logged the secrets would leak into the logs without
// this filter. The alternative, of redacting at every site where such errors may be
// logged, is less maintainable in the long term.
type storageLogSanitizer struct {
}

func NewStorageLogSanitizer() LogSanitizer {
	return &storageLogSanitizer{}
}

var sensitiveQueryStringKeys = []string{
	SigAzure,
	"signature",  // covers full spellings of the above, plus x-amz-signature should a message ever carry one
	"token",      // seems worth removing in case something uses it one day
	"credential", // covers redacting x-amz-credential style keys from logs
}

// SanitizeLogMessage removes credentials and credential-like strings that are expected to
// exist in material logged by this library.
// Note: it does not remove whole headers. Signing code never logs Authorization values.
// It does however remove signatures of the type found in SAS tokens.
// The implementation uses a 'to lower' of the raw string, because the alternative (of
// using case-insensitive regexs) was surprisingly measured as 36 times slower in testing.
func (s *storageLogSanitizer) SanitizeLogMessage(msg string) string {
	lowerMsg := strings.ToLower(msg)

	for _, key := range sensitiveQueryStringKeys {
		// take a quick look, using contains, and then get fancy only if we
		// find something in the quick look
		if strings.Contains(lowerMsg, key) {
			msg = s.redact(msg, key) // must redact from the real (original case) msg, not lowerMsg
		}
	}

	return msg
}

func (s *storageLogSanitizer) redact(msg, key string) string {
	const redacted = "-REDACTED-"

	return sensitiveRegexMap[key].ReplaceAllString(msg, "$1"+redacted)
}

// as per https://groups.google.com/forum/#!topic/golang-nuts/3FVAs9dPR8k, this map should be
// safe for concurrent reads
var sensitiveRegexMap = make(map[string]*regexp.Regexp)

// init a map of pre-prepared regexes, one for each key
func init() {
	for _, key := range sensitiveQueryStringKeys {
		// We don't care what's before the key (in a query string it will always be ? or &, but that's not
		// the case in say, an auth header).
		// Also, for flexibility and robustness we allow : or = as the delimiter, and allow space around it.
		// We do ASSUME that the value to be redacted will never contain a &.
		// Regex has two groups: first gets key and delimiter.
		// Second group gets as many chars as possible that do not terminate the value.
		sensitiveRegexMap[key] = regexp.MustCompile("(?i)(?P<key>" + key + "[ \t]*[:=][ \t]*)(?P<value>[^& ,;\t\n\r]+)")
	}
}
