package restore

import (
	"errors"
	"io/fs"
	"os"
	"time"
)

// NoOpResult is the outcome of evaluating whether a project needs restoring.
type NoOpResult struct {
	NoOp bool

	// Reason names the first check that failed; empty for a no-op.
	Reason string

	// Marker is the restore-state marker that was read; never nil.
	Marker *CacheFile

	// Lock is the existing lock file, if one could be read.
	Lock *LockFile
}

// EvaluateNoOp decides whether the previous restore of p is still current for
// specHash. In locked mode the lock's spec fingerprint is not compared: the
// marker alone vouches for the inputs, since locked mode never rewrites the lock.
func EvaluateNoOp(p *ProjectRestoreSpec, specHash string) (*NoOpResult, error) {
	marker, err := LoadCacheFile(p.CacheFilePath())
	if err != nil {
		return nil, err
	}
	res := &NoOpResult{Marker: marker}

	lock, err := LoadLockFile(p.LockPath)
	switch {
	case err == nil:
		res.Lock = lock
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	fail := func(reason string) (*NoOpResult, error) {
		res.Reason = reason
		return res, nil
	}

	if !marker.IsValid() {
		return fail("no successful restore recorded")
	}
	if marker.SpecHash != specHash {
		return fail("restore inputs changed")
	}
	if !marker.VerifyPackageFilesExist() {
		return fail("installed packages are missing")
	}
	if lock == nil {
		return fail("lock file is missing")
	}
	if lock.Fingerprint != marker.LockFingerprint {
		return fail("lock file changed since the last restore")
	}
	if p.LockMode != LockModeLocked && lock.SpecFingerprint != specHash {
		return fail("lock file was produced from different inputs")
	}

	if p.DescriptorPath != "" {
		descriptor, ok := modTime(p.DescriptorPath)
		if ok {
			if t, _ := modTime(p.CacheFilePath()); t.Before(descriptor) {
				return fail("descriptor is newer than the restore marker")
			}
			if t, _ := modTime(p.LockPath); t.Before(descriptor) {
				return fail("descriptor is newer than the lock file")
			}
		}
	}

	res.NoOp = true
	return res, nil
}

func modTime(path string) (time.Time, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return fi.ModTime(), true
}
