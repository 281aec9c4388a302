package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem(t *testing.T) {
	osfs := OSFileSystem{}

	info, err := osfs.Stat("filesystem.go")
	if err != nil || info.IsDir() {
		t.Errorf("Stat: %v, %v", info, err)
	}
	if _, err := osfs.Stat("nonexistent_file_xyz.go"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat missing = %v, want ErrNotExist", err)
	}
}

func TestOSFileSystemAccess(t *testing.T) {
	osfs := OSFileSystem{}
	path := filepath.Join(t.TempDir(), "device")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatal(err)
	}

	if err := osfs.Access(path, AccessRead|AccessWrite); err != nil {
		t.Errorf("Access on own file: %v", err)
	}
	err := osfs.Access(filepath.Join(t.TempDir(), "missing"), AccessRead)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Access on missing file = %v, want ErrNotExist", err)
	}
}

func TestMemoryFileSystem(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.WriteFile("/etc/config.json", []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	mfs.AddDevice("/dev/ttyACM0")

	cfg, err := mfs.Stat("/etc/config.json")
	if err != nil || cfg.Size() != 2 || !cfg.Mode().IsRegular() {
		t.Errorf("Stat regular file = %v, %v", cfg, err)
	}

	info, err := mfs.Stat("/dev/ttyACM0")
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&fs.ModeCharDevice == 0 {
		t.Errorf("device mode = %v, want char device", info.Mode())
	}
	if info.Name() != "ttyACM0" {
		t.Errorf("Name() = %q", info.Name())
	}

	if _, err := mfs.Stat("/dev/ttyUSB9"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat missing = %v", err)
	}
	if _, err := mfs.Stat("/dev/./ttyACM0"); err != nil {
		t.Errorf("Stat should clean paths: %v", err)
	}
}

func TestMemoryFileSystemAccess(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.AddDevice("/dev/ttyACM0")

	if err := mfs.Access("/dev/ttyACM0", AccessRead|AccessWrite); err != nil {
		t.Errorf("Access = %v", err)
	}

	mfs.Deny("/dev/ttyACM0")
	if err := mfs.Access("/dev/ttyACM0", AccessRead); !errors.Is(err, fs.ErrPermission) {
		t.Errorf("Access after Deny = %v, want ErrPermission", err)
	}

	if err := mfs.Remove("/dev/ttyACM0"); err != nil {
		t.Fatal(err)
	}
	if err := mfs.Access("/dev/ttyACM0", AccessRead); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Access after Remove = %v, want ErrNotExist", err)
	}
	if err := mfs.Remove("/dev/ttyACM0"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("second Remove = %v", err)
	}
}
