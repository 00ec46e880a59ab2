// Package subprocess implements the solver subprocess adapter and
// shared-memory IPC (spec §4.2, "C2"): a fork-based isolation boundary
// carrying formula payloads, clause export/import buffers, control
// flags, and results between a parent worker and a child solver image.
package subprocess

import (
	"fmt"
	"os"

	"github.com/grailbio/base/errors"
	"golang.org/x/sys/unix"
)

// region is one named, mmap-backed shared-memory block, grounded on
// original_source/src/util/sys/shared_memory.hpp's create/access/free
// trio. A region is backed by a file under the shared-memory directory
// (conventionally /dev/shm on Linux) so it can be mmap(MAP_SHARED) by
// both this process and the forked solver child.
type region struct {
	name string
	path string
	file *os.File
	data []byte
}

// shmDir is the directory regions are created under. /dev/shm is the
// POSIX shared-memory tmpfs on Linux; original_source's SharedMemory
// wrapper uses shm_open, which resolves to the same filesystem.
var shmDir = "/dev/shm"

func regionPath(name string) string {
	return fmt.Sprintf("%s/%s", shmDir, name)
}

// createRegion creates a named region of the given size and maps it. A
// pre-existing region of the same name is unlinked first (spec §4.2
// "Failure semantics": "adapters tolerate pre-existing names by
// unlinking first") and a fresh one is created in its place.
func createRegion(name string, size int) (*region, error) {
	path := regionPath(name)
	_ = os.Remove(path)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, errors.E(errors.Unavailable, fmt.Sprintf("subprocess: create shared region %s", name), err)
	}
	if size > 0 {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			os.Remove(path)
			return nil, errors.E(errors.Unavailable, fmt.Sprintf("subprocess: truncate shared region %s", name), err)
		}
	}

	data, err := mmapFile(f, size)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}

	return &region{name: name, path: path, file: f, data: data}, nil
}

// openRegion attaches to an already-created region by name, the way a
// forked child re-resolves the shared-memory id passed on its argv
// (spec §4.2 "Public contract": "the child memory-maps the region").
func openRegion(name string, size int) (*region, error) {
	path := regionPath(name)
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.E(errors.Unavailable, fmt.Sprintf("subprocess: open shared region %s", name), err)
	}
	data, err := mmapFile(f, size)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &region{name: name, path: path, file: f, data: data}, nil
}

func mmapFile(f *os.File, size int) ([]byte, error) {
	if size == 0 {
		// unix.Mmap rejects a zero length; a zero-size region (e.g. an
		// empty assumptions buffer) is legal, so hand back an empty
		// slice without mapping anything.
		return []byte{}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.E(errors.Unavailable, "subprocess: mmap", err)
	}
	return data, nil
}

// Bytes exposes the region's backing memory.
func (r *region) Bytes() []byte { return r.data }

// close unmaps and closes the region's file descriptor without
// removing it from the filesystem namespace.
func (r *region) close() error {
	var err error
	if len(r.data) > 0 {
		err = unix.Munmap(r.data)
	}
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// unlink removes the region from the shared-memory namespace (spec §8
// testable property 7: "After terminate() returns, no shared-memory
// region with the attempt's prefix remains in the filesystem
// namespace").
func (r *region) unlink() error {
	return os.Remove(r.path)
}
