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
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// GlobalHTTPClient is the process-wide HTTP client used by the execution engine when the
// caller does not supply its own transport. Initialized lazily by GetGlobalHTTPClient.
var (
	GlobalHTTPClient     *http.Client
	globalHTTPClientOnce sync.Once
)

const maxIdleConnsPerHostCap = 3000

// GetGlobalHTTPClient initializes and returns the process-global HTTP client exactly once.
// Subsequent calls return the same client. The logger, if provided on the first call, will
// be given a status message describing the transport settings.
//
// Compression is disabled because Storage payloads are either already compressed or must be
// byte-identical to what the service holds (MD5 validation happens on the raw body).
func GetGlobalHTTPClient(logger ILogger) *http.Client {
	globalHTTPClientOnce.Do(func() {
		const concurrentDialsPerCpu = 10
		client := &http.Client{
			Transport: &http.Transport{
				Proxy:                  ProxyFromFunc(GetProxy()),
				MaxConnsPerHost:        concurrentDialsPerCpu * runtime.NumCPU(),
				MaxIdleConns:           0,
				MaxIdleConnsPerHost:    getMaxIdleConnsPerHost(),
				IdleConnTimeout:        180 * time.Second,
				TLSHandshakeTimeout:    10 * time.Second,
				ExpectContinueTimeout:  1 * time.Second,
				DisableKeepAlives:      false,
				DisableCompression:     true,
				MaxResponseHeaderBytes: 0,
			},
		}
		GlobalHTTPClient = client
		if logger != nil {
			if tr, ok := client.Transport.(*http.Transport); ok {
				logger.Log(LogInfo, fmt.Sprintf(
					"GetGlobalHTTPClient: initialized %p MaxIdleConnsPerHost=%d MaxConnsPerHost=%d",
					client, tr.MaxIdleConnsPerHost, tr.MaxConnsPerHost))
			}
		}
	})
	return GlobalHTTPClient
}

// getMaxIdleConnsPerHost sizes the idle pool from the CPU count. Idle connections are almost
// always needed again soon after a retry loop releases them, so the pool is kept generous;
// letting them close just forces extra dials (and, historically, OS thread churn) later.
func getMaxIdleConnsPerHost() int {
	numOfCPUs := runtime.NumCPU()

	var computedDefaultVal int
	if numOfCPUs <= 4 {
		// fix the concurrency value for smaller machines
		computedDefaultVal = 32
	} else if 16*numOfCPUs > 300 {
		// for machines that are extremely powerful, fix to 300
		computedDefaultVal = 300
	} else {
		// for moderately powerful machines, compute a reasonable number
		computedDefaultVal = 16 * numOfCPUs
	}

	concurrencyValue := min(computedDefaultVal, maxIdleConnsPerHostCap)

	// Add a buffer to allow for some extra idle connections in bursty scenarios.
	return int(float64(concurrencyValue) * 1.2)
}
