//go:build linux
// +build linux

package drm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	ioctlGetParam     = iowr(drmCommandBase+nouveauGetParam, unsafe.Sizeof(GetParamArgs{}))
	ioctlChannelAlloc = iowr(drmCommandBase+nouveauChannelAlloc, unsafe.Sizeof(ChannelAllocArgs{}))
	ioctlChannelFree  = iow(drmCommandBase+nouveauChannelFree, unsafe.Sizeof(ChannelFreeArgs{}))
	ioctlGemNew       = iowr(drmCommandBase+nouveauGemNew, unsafe.Sizeof(GemNewArgs{}))
	ioctlGemPushbuf   = iowr(drmCommandBase+nouveauGemPushbuf, unsafe.Sizeof(PushbufArgs{}))
	ioctlGemCPUPrep   = iow(drmCommandBase+nouveauGemCPUPrep, unsafe.Sizeof(GemCPUPrepArgs{}))
	ioctlGemClose     = iow(drmGemClose, unsafe.Sizeof(GemCloseArgs{}))
)

// ioctl issues a DRM ioctl, retrying when interrupted.
func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(
			unix.SYS_IOCTL,
			uintptr(fd),
			req,
			uintptr(arg),
		)
		switch errno {
		case 0:
			return nil
		case unix.EINTR, unix.EAGAIN:
			continue
		default:
			return errno
		}
	}
}
