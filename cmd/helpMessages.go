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

package cmd

// ===================================== ROOT COMMAND ===================================== //
const rootCmdShortDescription = "stgprobe exercises Azure Storage endpoints through the retrying execution engine."

const rootCmdLongDescription = `
  The general format of the commands is: stgprobe [command] [arguments] --[flag-name]=[flag-value].

  stgprobe sends authenticated requests against a storage account's primary endpoint, and
  optionally its read-access secondary, driving them through the same retry, geo-failover,
  and execution-deadline machinery that production operations use. Each command prints the
  per-attempt history (status, service request ID, target location, duration) so transient
  failures and failover decisions are visible.
`

// ===================================== PROBE COMMAND ===================================== //
const probeCmdShortDescription = "Fetches one or more resources and reports the attempt history"

const probeCmdLongDescription = `
Fetch each given resource URL through the execution engine and print what happened on
every attempt. Authentication is taken from the URL itself (a SAS token in the query
string), from the ACCOUNT_NAME/ACCOUNT_KEY environment variables (shared key), or is
anonymous when neither is present.

When --secondary is given, reads are allowed to fail over to that endpoint after a
retryable failure on the primary.

Examples:
  - stgprobe probe "https://myaccount.blob.core.windows.net/c/blob?sv=...&sig=..."
  - stgprobe probe --secondary https://myaccount-secondary.blob.core.windows.net \
      https://myaccount.blob.core.windows.net/c/blob
  - stgprobe probe --output-file ./blob.bin --check-md5 LogOnly https://.../c/blob
`
