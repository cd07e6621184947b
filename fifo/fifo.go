// Package fifo encodes and decodes GPU FIFO method streams and provides a
// fence emitter built on channel semaphores.
package fifo

import (
	"github.com/pkg/errors"
)

// See nvidia open-gpu-doc, classes/host/clc06f.h and the nouveau pushbuffer
// header macros.

// PacketType is the type of a method header.
type PacketType uint8

const (
	// PacketIncreasing writes consecutive methods.
	PacketIncreasing PacketType = 1
	// PacketNonIncreasing writes every data word to the same method.
	PacketNonIncreasing PacketType = 3
	// PacketImmediate carries a 13 bit data value in the header.
	PacketImmediate PacketType = 4
	// PacketIncreaseOnce writes the first word to the method and the rest
	// to the following method.
	PacketIncreaseOnce PacketType = 5
)

const (
	// SemaphoreA holds the upper 8 bits of the semaphore address.
	SemaphoreA uint32 = 0x0010
	// SemaphoreB holds the lower 32 bits of the semaphore address.
	SemaphoreB uint32 = 0x0014
	// SemaphoreC holds the payload.
	SemaphoreC uint32 = 0x0018
	// SemaphoreD triggers the semaphore operation.
	SemaphoreD uint32 = 0x001c

	// SemaphoreAcquire waits for the payload to equal the semaphore.
	SemaphoreAcquire uint32 = 0x1
	// SemaphoreRelease writes the payload to the semaphore.
	SemaphoreRelease uint32 = 0x2
	// SemaphoreAcquireGEQ waits for the semaphore to reach the payload.
	SemaphoreAcquireGEQ uint32 = 0x4
	// SemaphoreOperationMask selects the operation bits of SemaphoreD.
	SemaphoreOperationMask uint32 = 0x7
	// SemaphoreReleaseWFIDisable skips the wait-for-idle before a release.
	SemaphoreReleaseWFIDisable uint32 = 1 << 20
	// SemaphoreReleaseSize4 writes only the 4 byte payload instead of a 16
	// byte report.
	SemaphoreReleaseSize4 uint32 = 1 << 24
)

const (
	maxCount   = 0x1fff
	maxMethod  = 0x7ffc
	maxSubchan = 7
)

var errTruncated = errors.New("truncated method packet")

// Method is a single decoded method write.
type Method struct {
	Subchannel uint8
	Method     uint32
	Data       uint32
}

func header(t PacketType, subc int, mthd uint32, count uint32) uint32 {
	if subc < 0 || subc > maxSubchan {
		panic(errors.Errorf("fifo: invalid subchannel %d", subc))
	}
	if mthd > maxMethod || mthd&3 != 0 {
		panic(errors.Errorf("fifo: invalid method %#x", mthd))
	}
	if count > maxCount {
		panic(errors.Errorf("fifo: count %d out of range", count))
	}
	return uint32(t)<<29 | count<<16 | uint32(subc)<<13 | mthd>>2
}

// IncHeader returns a header for n words written to consecutive methods
// starting at mthd.
func IncHeader(subc int, mthd uint32, n int) uint32 {
	return header(PacketIncreasing, subc, mthd, uint32(n))
}

// NonIncHeader returns a header for n words written to mthd.
func NonIncHeader(subc int, mthd uint32, n int) uint32 {
	return header(PacketNonIncreasing, subc, mthd, uint32(n))
}

// OnceHeader returns a header writing the first word to mthd and the
// remaining n-1 words to the next method.
func OnceHeader(subc int, mthd uint32, n int) uint32 {
	return header(PacketIncreaseOnce, subc, mthd, uint32(n))
}

// ImmdHeader returns a header writing data to mthd with no payload words.
func ImmdHeader(subc int, mthd uint32, data uint32) uint32 {
	return header(PacketImmediate, subc, mthd, data)
}

// Decode walks a method stream calling fn for every method write. Decoding
// stops at the first error returned by fn.
func Decode(words []uint32, fn func(Method) error) error {
	for i := 0; i < len(words); {
		w := words[i]
		i++
		if w == 0 {
			// Zero words are padding.
			continue
		}
		var (
			t     = PacketType(w >> 29)
			count = int((w >> 16) & maxCount)
			subc  = uint8((w >> 13) & maxSubchan)
			mthd  = (w & 0x1fff) << 2
		)
		if t == PacketImmediate {
			if err := fn(Method{Subchannel: subc, Method: mthd, Data: uint32(count)}); err != nil {
				return err
			}
			continue
		}
		if t != PacketIncreasing && t != PacketNonIncreasing && t != PacketIncreaseOnce {
			return errors.Errorf("unknown packet type %d in word %#08x at %d", t, w, i-1)
		}
		if i+count > len(words) {
			return errors.Wrapf(errTruncated, "%d words at %d, %d left", count, i-1, len(words)-i)
		}
		for j := 0; j < count; j++ {
			m := Method{Subchannel: subc, Method: mthd, Data: words[i+j]}
			switch {
			case t == PacketIncreasing:
				m.Method = mthd + uint32(j)*4
			case t == PacketIncreaseOnce && j > 0:
				m.Method = mthd + 4
			}
			if err := fn(m); err != nil {
				return err
			}
		}
		i += count
	}
	return nil
}
