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

// Package engine implements the retry-driven, location-aware request execution pipeline
// shared by every Storage operation: it resolves which endpoint of a geo-replicated
// account to target, signs and transmits the request, classifies the outcome, and
// retries with backoff under a wall-clock execution budget.
package engine

import (
	"net/url"
	"reflect"
	"time"

	"github.com/JeffreyRichter/enum/enum"
	"github.com/pkg/errors"

	"github.com/wastore/azure-storage-core-go/common"
)

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EStorageLocation = StorageLocation(0)

// StorageLocation identifies which physical endpoint of a geo-replicated account an
// attempt targeted.
type StorageLocation uint8

func (StorageLocation) Primary() StorageLocation   { return StorageLocation(0) }
func (StorageLocation) Secondary() StorageLocation { return StorageLocation(1) }

func (sl StorageLocation) String() string {
	return enum.StringInt(sl, reflect.TypeOf(sl))
}

func (sl *StorageLocation) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(sl), s, true, true)
	if err == nil {
		*sl = val.(StorageLocation)
	}
	return err
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var ELocationMode = LocationMode(0)

// LocationMode says which endpoints an operation is allowed to target and in what order.
// Writes are PrimaryOnly by nature; reads against an RA-GRS account may use either
// ordering. Once an operation's mode is fixed to a single location the engine never
// overrides it.
type LocationMode uint8

func (LocationMode) PrimaryOnly() LocationMode          { return LocationMode(0) }
func (LocationMode) SecondaryOnly() LocationMode        { return LocationMode(1) }
func (LocationMode) PrimaryThenSecondary() LocationMode { return LocationMode(2) }
func (LocationMode) SecondaryThenPrimary() LocationMode { return LocationMode(3) }

func (lm LocationMode) String() string {
	return enum.StringInt(lm, reflect.TypeOf(lm))
}

func (lm *LocationMode) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(lm), s, true, true)
	if err == nil {
		*lm = val.(LocationMode)
	}
	return err
}

// initialLocation is where the first attempt goes under this mode.
func (lm LocationMode) initialLocation() StorageLocation {
	switch lm {
	case ELocationMode.SecondaryOnly(), ELocationMode.SecondaryThenPrimary():
		return EStorageLocation.Secondary()
	default:
		return EStorageLocation.Primary()
	}
}

// fixed reports whether this mode permits exactly one location.
func (lm LocationMode) fixed() bool {
	return lm == ELocationMode.PrimaryOnly() || lm == ELocationMode.SecondaryOnly()
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// StorageUri is the immutable pair of endpoints for a geo-replicated account. The
// secondary may be nil for accounts without read-access geo-replication.
type StorageUri struct {
	primaryUri   *url.URL
	secondaryUri *url.URL
}

// NewStorageUri builds the pair; the primary is required.
func NewStorageUri(primary, secondary *url.URL) (StorageUri, error) {
	if primary == nil {
		return StorageUri{}, errors.New("a primary URI is required")
	}
	return StorageUri{primaryUri: primary, secondaryUri: secondary}, nil
}

func (su StorageUri) PrimaryUri() *url.URL   { return su.primaryUri }
func (su StorageUri) SecondaryUri() *url.URL { return su.secondaryUri }

// UriForLocation returns the endpoint for the given location, or nil if the account has
// no endpoint there.
func (su StorageUri) UriForLocation(location StorageLocation) *url.URL {
	if location == EStorageLocation.Secondary() {
		return su.secondaryUri
	}
	return su.primaryUri
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// RequestResult records one physical HTTP attempt. Immutable once appended to the
// operation context.
type RequestResult struct {
	StatusCode       int
	ServiceRequestID string // the service's x-ms-request-id, when a response was received
	StartTime        time.Time
	StopTime         time.Time
	TargetLocation   StorageLocation
	Err              error // nil on success
}

// Duration is the wall-clock time this attempt took, including connection setup.
func (r RequestResult) Duration() time.Duration { return r.StopTime.Sub(r.StartTime) }

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// RequestOptions carries the per-operation configuration the engine consumes. The zero
// value is usable; Defaults fills in the standard values the service team recommends.
type RequestOptions struct {
	// Retry configures the backoff policy. See RetryOptions.
	Retry RetryOptions

	// MaxExecutionTime bounds the total wall-clock time across all attempts of the
	// operation, including backoff sleeps. Zero means no bound.
	MaxExecutionTime time.Duration

	// LocationMode says which endpoints the operation may target. The engine respects a
	// mode the operation itself has pinned (writes pin PrimaryOnly) and never widens it.
	LocationMode LocationMode

	// HashValidation controls transactional MD5 checking on downloaded bodies.
	HashValidation common.HashValidationOption
}

func (o RequestOptions) defaults() RequestOptions {
	o.Retry = o.Retry.defaults()
	return o
}
