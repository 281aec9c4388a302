package gnss

import (
	"errors"
	"io/fs"

	"github.com/banshee-data/position.report/internal/fsutil"
	"github.com/banshee-data/position.report/internal/location"
)

// DeviceAuthorization answers the tracker's permission questions from the
// receiver's device node. Location services are "enabled" when a receiver is
// configured at all; authorization follows the node's presence, type and
// access bits.
type DeviceAuthorization struct {
	fs      fsutil.FileSystem
	path    string
	enabled bool
}

var _ location.AuthorizationQuery = (*DeviceAuthorization)(nil)

func NewDeviceAuthorization(fsys fsutil.FileSystem, path string, enabled bool) *DeviceAuthorization {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &DeviceAuthorization{fs: fsys, path: path, enabled: enabled}
}

func (a *DeviceAuthorization) LocationServicesEnabled() bool {
	return a.enabled
}

// AuthorizationStatus reports NotDetermined while the device is absent,
// Restricted when the path is not a character device, and Denied when the
// process lacks read/write access.
func (a *DeviceAuthorization) AuthorizationStatus() location.AuthorizationStatus {
	info, err := a.fs.Stat(a.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return location.AuthorizationNotDetermined
	case errors.Is(err, fs.ErrPermission):
		return location.AuthorizationDenied
	case err != nil:
		return location.AuthorizationNotDetermined
	}
	if info.Mode()&fs.ModeCharDevice == 0 {
		return location.AuthorizationRestricted
	}
	if err := a.fs.Access(a.path, fsutil.AccessRead|fsutil.AccessWrite); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return location.AuthorizationNotDetermined
		}
		return location.AuthorizationDenied
	}
	return location.AuthorizationAuthorized
}

// AlwaysAuthorized grants access unconditionally. Used with simulated feeds.
type AlwaysAuthorized struct{}

func (AlwaysAuthorized) LocationServicesEnabled() bool { return true }

func (AlwaysAuthorized) AuthorizationStatus() location.AuthorizationStatus {
	return location.AuthorizationAuthorized
}
