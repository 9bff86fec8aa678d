package engine

import (
	"github.com/pkg/errors"
)

// errNoSuchLocation is returned when an operation's mode demands an endpoint the
// account does not have. It is a configuration mistake, never retried.
func errNoSuchLocation(location StorageLocation) error {
	return errors.Errorf("the operation requires the %v endpoint, but the account has none configured", location)
}

// nextLocation decides which endpoint the next attempt targets.
//
// A pinned location (set by a download's recovery hook after partial bytes were
// delivered under an ETag lock) always wins: resuming against the other endpoint could
// observe a replica that has not caught up to the pinned version. Fixed modes come
// next. The alternating modes flip to the other endpoint on retry only when that
// endpoint exists; otherwise every attempt stays where it started.
func nextLocation(mode LocationMode, uri StorageUri, last StorageLocation, isRetry bool, state *AttemptState) (StorageLocation, error) {
	if state != nil && state.LockedLocation != nil {
		loc := *state.LockedLocation
		if uri.UriForLocation(loc) == nil {
			return loc, errNoSuchLocation(loc)
		}
		return loc, nil
	}

	if mode.fixed() {
		loc := mode.initialLocation()
		if uri.UriForLocation(loc) == nil {
			return loc, errNoSuchLocation(loc)
		}
		return loc, nil
	}

	if !isRetry {
		loc := mode.initialLocation()
		if uri.UriForLocation(loc) == nil {
			// e.g. SecondaryThenPrimary against an account without a secondary
			loc = otherLocation(loc)
			if uri.UriForLocation(loc) == nil {
				return loc, errNoSuchLocation(loc)
			}
		}
		return loc, nil
	}

	alternate := otherLocation(last)
	if uri.UriForLocation(alternate) != nil {
		return alternate, nil
	}
	return last, nil
}

func otherLocation(loc StorageLocation) StorageLocation {
	if loc == EStorageLocation.Primary() {
		return EStorageLocation.Secondary()
	}
	return EStorageLocation.Primary()
}
