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
	"errors"

	"github.com/wastore/azure-storage-core-go/common"
)

type md5Comparer struct {
	expected         []byte // the service's Content-MD5, as stored against the resource
	actualAsReceived []byte // computed over the bytes this process actually received
	validationOption common.HashValidationOption
	logger           common.ILogger
}

var ErrMd5Mismatch = errors.New("the MD5 hash of the data, as we received it, did not match the expected value, as found in the service. " +
	"This means that either there is a data integrity error OR another tool has failed to keep the stored hash up to date")

const noMD5Stored = "no MD5 was stored in the service against this resource, so the downloaded data cannot be MD5-validated"

var errActualMd5NotComputed = errors.New("no MD5 was computed within this application. This indicates a logic error in this application")

// Check compares the two MD5s, and returns any error if applicable.
// Any informational logging is done within Check, so all the caller needs to do
// is respond to non-nil errors.
func (c *md5Comparer) Check() error {
	if c.validationOption == common.EHashValidationOption.NoCheck() {
		return nil
	}

	// missing (at the source)
	if len(c.expected) == 0 {
		switch c.validationOption {
		case common.EHashValidationOption.FailIfDifferent(),
			common.EHashValidationOption.LogOnly():
			c.logger.Log(common.LogWarning, noMD5Stored)
			return nil
		default:
			panic("unexpected hash validation type")
		}
	}

	// exists at source
	if len(c.actualAsReceived) == 0 {
		return errActualMd5NotComputed // Should never happen, so there's no way to opt out of this error being returned if it DOES happen
	}
	if !bytes.Equal(c.expected, c.actualAsReceived) {
		switch c.validationOption {
		case common.EHashValidationOption.FailIfDifferent():
			return ErrMd5Mismatch
		case common.EHashValidationOption.LogOnly():
			c.logger.Log(common.LogWarning, ErrMd5Mismatch.Error())
			return nil
		default:
			panic("unexpected hash validation type")
		}
	}

	return nil
}
