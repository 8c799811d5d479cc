package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/nativebridge/errors"
)

// guestMemory reads and writes guest linear memory, growing it on demand.
type guestMemory struct {
	mem api.Memory
}

func (m guestMemory) Read(offset, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.New(errors.PhaseTransport, errors.KindOutOfBounds).
			Detail("guest read out of bounds: offset=%d, length=%d", offset, length).
			Build()
	}
	return data, nil
}

func (m guestMemory) Write(offset uint32, data []byte) error {
	if err := m.ensure(uint64(offset) + uint64(len(data))); err != nil {
		return err
	}
	if !m.mem.Write(offset, data) {
		return errors.New(errors.PhaseTransport, errors.KindOutOfBounds).
			Detail("guest write out of bounds: offset=%d, length=%d", offset, len(data)).
			Build()
	}
	return nil
}

func (m guestMemory) ensure(end uint64) error {
	size := uint64(m.mem.Size())
	if end <= size {
		return nil
	}
	pages := (end - size + pageSize - 1) / pageSize
	if _, ok := m.mem.Grow(uint32(pages)); !ok {
		return errors.New(errors.PhaseTransport, errors.KindOutOfBounds).
			Detail("guest memory cannot grow to %d bytes", end).
			Build()
	}
	Logger().Debug("guest memory grown", zap.Uint64("pages", pages), zap.Uint32("size", m.mem.Size()))
	return nil
}

func (m guestMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// guestAllocator places requests through the guest's own allocator.
type guestAllocator struct {
	fn     api.Function
	stack  []uint64
	simple bool
}

func newGuestAllocator(mod api.Module) *guestAllocator {
	if fn := mod.ExportedFunction(CabiRealloc); fn != nil {
		return &guestAllocator{fn: fn, stack: make([]uint64, 4)}
	}
	if fn := mod.ExportedFunction(simpleAlloc); fn != nil {
		return &guestAllocator{fn: fn, stack: make([]uint64, 1), simple: true}
	}
	return nil
}

func (a *guestAllocator) Alloc(ctx context.Context, size, align uint32) (uint32, error) {
	if a.simple {
		a.stack[0] = uint64(size)
	} else {
		a.stack[0] = 0
		a.stack[1] = 0
		a.stack[2] = uint64(align)
		a.stack[3] = uint64(size)
	}
	if err := a.fn.CallWithStack(ctx, a.stack); err != nil {
		return 0, err
	}
	return uint32(a.stack[0]), nil
}
