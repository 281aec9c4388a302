package location

import "errors"

var (
	// ErrServicesDisabled means the sensor reports location services off.
	ErrServicesDisabled = errors.New("location services disabled")
	// ErrPermissionDenied means the platform denied location access.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrPermissionRestricted means location access is restricted by policy.
	ErrPermissionRestricted = errors.New("location permission restricted")
	// ErrInvalidConfig is wrapped by every TrackerConfig validation error.
	ErrInvalidConfig = errors.New("invalid tracker config")
)
