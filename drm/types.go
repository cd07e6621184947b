// Package drm submits push buffers through the nouveau DRM kernel interface
// and reads fence completion back from a mapped semaphore buffer.
package drm

// See include/uapi/drm/nouveau_drm.h and include/uapi/drm/drm.h.

const (
	drmIoctlBase   = 'd'
	drmCommandBase = 0x40

	nouveauGetParam     = 0x00
	nouveauChannelAlloc = 0x02
	nouveauChannelFree  = 0x03
	nouveauGemNew       = 0x40
	nouveauGemPushbuf   = 0x41
	nouveauGemCPUPrep   = 0x42
	nouveauGemInfo      = 0x44

	drmGemClose = 0x09

	iocWrite = 1
	iocRead  = 2
)

// Memory domains.
const (
	DomainCPU      uint32 = 1 << 0
	DomainVRAM     uint32 = 1 << 1
	DomainGART     uint32 = 1 << 2
	DomainMappable uint32 = 1 << 3
)

// GetParam parameters.
const (
	ParamPCIVendor       uint64 = 3
	ParamPCIDevice       uint64 = 4
	ParamBusType         uint64 = 5
	ParamFBSize          uint64 = 8
	ParamAGPSize         uint64 = 9
	ParamChipsetID       uint64 = 11
	ParamVMVRAMBase      uint64 = 12
	ParamGraphUnits      uint64 = 13
	ParamPTimerTime      uint64 = 14
	ParamHasBoUsage      uint64 = 15
	ParamHasPageFlip     uint64 = 16
	ParamExecPushMaxSize uint64 = 17
)

const cpuPrepWrite uint32 = 4

// GetParamArgs is struct drm_nouveau_getparam.
type GetParamArgs struct {
	Param uint64
	Value uint64
}

// Subchannel is a DRM enforced subchannel assignment.
type Subchannel struct {
	Handle  uint32
	GrClass uint32
}

// ChannelAllocArgs is struct drm_nouveau_channel_alloc.
type ChannelAllocArgs struct {
	FBCtxDMAHandle uint32
	TTCtxDMAHandle uint32
	Channel        int32
	PushbufDomains uint32
	NotifierHandle uint32
	Subchan        [8]Subchannel
	NrSubchan      uint32
}

// ChannelFreeArgs is struct drm_nouveau_channel_free.
type ChannelFreeArgs struct {
	Channel int32
}

// GemInfo is struct drm_nouveau_gem_info.
type GemInfo struct {
	Handle    uint32
	Domain    uint32
	Size      uint64
	Offset    uint64
	MapHandle uint64
	TileMode  uint32
	TileFlags uint32
}

// GemNewArgs is struct drm_nouveau_gem_new.
type GemNewArgs struct {
	Info        GemInfo
	ChannelHint uint32
	Align       uint32
}

// PushbufPresumed is the presumed placement of a buffer.
type PushbufPresumed struct {
	Valid  uint32
	Domain uint32
	Offset uint64
}

// PushbufBo is struct drm_nouveau_gem_pushbuf_bo.
type PushbufBo struct {
	UserPriv     uint64
	Handle       uint32
	ReadDomains  uint32
	WriteDomains uint32
	ValidDomains uint32
	Presumed     PushbufPresumed
}

// PushbufPush is struct drm_nouveau_gem_pushbuf_push.
type PushbufPush struct {
	BoIndex uint32
	Pad     uint32
	Offset  uint64
	Length  uint64
}

// PushbufArgs is struct drm_nouveau_gem_pushbuf.
type PushbufArgs struct {
	Channel       uint32
	NrBuffers     uint32
	Buffers       uint64
	NrRelocs      uint32
	NrPush        uint32
	Relocs        uint64
	Push          uint64
	Suffix0       uint32
	Suffix1       uint32
	VRAMAvailable uint64
	GARTAvailable uint64
}

// GemCPUPrepArgs is struct drm_nouveau_gem_cpu_prep.
type GemCPUPrepArgs struct {
	Handle uint32
	Flags  uint32
}

// GemCloseArgs is struct drm_gem_close.
type GemCloseArgs struct {
	Handle uint32
	Pad    uint32
}

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | drmIoctlBase<<8 | nr
}

func iowr(nr, size uintptr) uintptr {
	return ioc(iocRead|iocWrite, nr, size)
}

func iow(nr, size uintptr) uintptr {
	return ioc(iocWrite, nr, size)
}
