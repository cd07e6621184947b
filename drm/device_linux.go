//go:build linux
// +build linux

package drm

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DefaultRenderNode is the first DRM render node.
const DefaultRenderNode = "/dev/dri/renderD128"

// Device is an open nouveau DRM device.
type Device struct {
	fd      int
	chipset uint64
}

// Open opens the DRM device at path and checks that it is driven by nouveau.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	d := &Device{fd: fd}
	chipset, err := d.GetParam(ParamChipsetID)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "%s is not a nouveau device", path)
	}
	d.chipset = chipset
	return d, nil
}

// Fd returns the file descriptor of the device.
func (d *Device) Fd() int {
	return d.fd
}

// Chipset returns the chipset id reported by the kernel.
func (d *Device) Chipset() uint64 {
	return d.chipset
}

// GetParam queries a device parameter.
func (d *Device) GetParam(param uint64) (uint64, error) {
	args := GetParamArgs{Param: param}
	if err := ioctl(d.fd, ioctlGetParam, unsafe.Pointer(&args)); err != nil {
		return 0, errors.Wrapf(err, "getparam %d", param)
	}
	return args.Value, nil
}

// Close closes the device.
func (d *Device) Close() error {
	return unix.Close(d.fd)
}
