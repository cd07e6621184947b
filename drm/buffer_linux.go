//go:build linux
// +build linux

package drm

import (
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Buffer is a CPU mapped GEM buffer object.
type Buffer struct {
	d    *Device
	info GemInfo
	// data must never be resized, it is mmap'd.
	data []byte
}

// NewBuffer allocates and maps a GEM buffer of size bytes in domain.
func (d *Device) NewBuffer(size uint64, domain uint32) (*Buffer, error) {
	args := GemNewArgs{
		Info: GemInfo{
			Size:   size,
			Domain: domain | DomainMappable,
		},
		Align: 0x1000,
	}
	if err := ioctl(d.fd, ioctlGemNew, unsafe.Pointer(&args)); err != nil {
		return nil, errors.Wrap(err, "failed to allocate gem buffer")
	}
	b := &Buffer{d: d, info: args.Info}
	data, err := unix.Mmap(
		d.fd,
		int64(args.Info.MapHandle),
		int(args.Info.Size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	if err != nil {
		b.close()
		return nil, errors.Wrap(err, "failed to mmap gem buffer")
	}
	b.data = data
	return b, nil
}

// Handle returns the GEM handle.
func (b *Buffer) Handle() uint32 {
	return b.info.Handle
}

// Address returns the GPU virtual address of the buffer.
func (b *Buffer) Address() uint64 {
	return b.info.Offset
}

// Size returns the size of the buffer in bytes.
func (b *Buffer) Size() uint64 {
	return b.info.Size
}

// Words returns the mapping as command words.
func (b *Buffer) Words() []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b.data[0])), len(b.data)/4)
}

// Load atomically reads the 32 bit word at byte offset off.
func (b *Buffer) Load(off int) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&b.data[off])))
}

// WaitIdle blocks until the GPU is done with the buffer.
func (b *Buffer) WaitIdle() error {
	args := GemCPUPrepArgs{Handle: b.info.Handle, Flags: cpuPrepWrite}
	if err := ioctl(b.d.fd, ioctlGemCPUPrep, unsafe.Pointer(&args)); err != nil {
		return errors.Wrap(err, "failed to wait for gem buffer")
	}
	return nil
}

// Close unmaps and frees the buffer.
func (b *Buffer) Close() error {
	if b.data != nil {
		if err := unix.Munmap(b.data); err != nil {
			return errors.Wrap(err, "failed to munmap gem buffer")
		}
		b.data = nil
	}
	return b.close()
}

func (b *Buffer) close() error {
	args := GemCloseArgs{Handle: b.info.Handle}
	if err := ioctl(b.d.fd, ioctlGemClose, unsafe.Pointer(&args)); err != nil {
		return errors.Wrap(err, "failed to close gem buffer")
	}
	return nil
}
