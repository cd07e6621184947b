//go:build linux
// +build linux

package drm

import (
	"runtime"
	"unsafe"

	"github.com/pkg/errors"

	pushbuf "github.com/hodgesds/pushbuf-go"
	"github.com/hodgesds/pushbuf-go/fifo"
)

// DefaultPushBuffers is the number of GEM buffers a channel cycles through
// for submissions.
const DefaultPushBuffers = 4

const fenceBufferSize = 0x1000

// Channel is a GPU channel. It implements pushbuf.Kicker by copying the
// command words into one of its GEM push buffers and submitting it, and
// pushbuf.Updater by reading the fence semaphore the GPU releases into.
type Channel struct {
	d       *Device
	id      int32
	domains uint32
	push    []*Buffer
	idx     int
	fence   *Buffer
}

var (
	_ pushbuf.Kicker  = (*Channel)(nil)
	_ pushbuf.Updater = (*Channel)(nil)
)

// NewChannel allocates a channel with nbufs push buffers that each hold
// words command words.
func (d *Device) NewChannel(words int, nbufs int) (*Channel, error) {
	if nbufs <= 0 {
		nbufs = DefaultPushBuffers
	}
	args := ChannelAllocArgs{}
	if err := ioctl(d.fd, ioctlChannelAlloc, unsafe.Pointer(&args)); err != nil {
		return nil, errors.Wrap(err, "failed to allocate channel")
	}
	c := &Channel{
		d:       d,
		id:      args.Channel,
		domains: args.PushbufDomains,
	}
	if c.domains == 0 {
		c.domains = DomainGART
	}
	for i := 0; i < nbufs; i++ {
		b, err := d.NewBuffer(uint64(words)*4, DomainGART)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.push = append(c.push, b)
	}
	fence, err := d.NewBuffer(fenceBufferSize, DomainGART)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.fence = fence
	return c, nil
}

// ID returns the kernel channel id.
func (c *Channel) ID() int32 {
	return c.id
}

// Emitter returns a fence emitter releasing into the channel's fence buffer.
func (c *Channel) Emitter() fifo.SemaphoreEmitter {
	return fifo.SemaphoreEmitter{Address: c.fence.Address()}
}

// FenceSequence implements pushbuf.Updater.
func (c *Channel) FenceSequence() uint32 {
	return c.fence.Load(0)
}

// Kick implements pushbuf.Kicker.
func (c *Channel) Kick(words []uint32) error {
	b := c.push[c.idx]
	if uint64(len(words))*4 > b.Size() {
		return errors.Errorf("%d words do not fit a %d byte push buffer", len(words), b.Size())
	}
	// The buffer was submitted nbufs kicks ago and may still be read.
	if err := b.WaitIdle(); err != nil {
		return err
	}
	copy(b.Words(), words)

	bos := [2]PushbufBo{
		{
			Handle:       b.Handle(),
			ReadDomains:  c.domains,
			ValidDomains: c.domains,
		},
		{
			Handle:       c.fence.Handle(),
			WriteDomains: DomainGART,
			ValidDomains: DomainGART,
		},
	}
	push := PushbufPush{
		BoIndex: 0,
		Length:  uint64(len(words)) * 4,
	}
	args := PushbufArgs{
		Channel:   uint32(c.id),
		NrBuffers: uint32(len(bos)),
		Buffers:   uint64(uintptr(unsafe.Pointer(&bos[0]))),
		NrPush:    1,
		Push:      uint64(uintptr(unsafe.Pointer(&push))),
	}
	err := ioctl(c.d.fd, ioctlGemPushbuf, unsafe.Pointer(&args))
	runtime.KeepAlive(&bos)
	runtime.KeepAlive(&push)
	if err != nil {
		return errors.Wrapf(err, "failed to submit %d words on channel %d", len(words), c.id)
	}
	c.idx = (c.idx + 1) % len(c.push)
	return nil
}

// Close frees the channel and its buffers.
func (c *Channel) Close() error {
	var firstErr error
	for _, b := range c.push {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.push = nil
	if c.fence != nil {
		if err := c.fence.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.fence = nil
	}
	args := ChannelFreeArgs{Channel: c.id}
	if err := ioctl(c.d.fd, ioctlChannelFree, unsafe.Pointer(&args)); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "failed to free channel")
	}
	return firstErr
}
