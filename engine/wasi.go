package engine

import (
	"context"

	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/wippyai/nativebridge/errors"
)

// reactorInit is the initializer of guests built as WASI reactors. Command
// guests (_start) would exit once main returns, so it is never run.
const reactorInit = "_initialize"

// initWASI instantiates WASI preview1 for guests whose toolchain imports
// it. Guest output is sent to the host's stderr; stdout may carry peer
// frames.
func (e *WazeroEngine) initWASI(ctx context.Context) error {
	if e.runtime.Module(wasi_snapshot_preview1.ModuleName) != nil {
		return nil
	}
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.runtime); err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, err, "wasi preview1")
	}
	return nil
}
