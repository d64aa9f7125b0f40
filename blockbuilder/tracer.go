package blockbuilder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
)

// TraceStep is one opcode execution recorded by the minimal struct logger,
// pared down to the fields debug_traceTransaction-shaped output needs: pc,
// opcode, remaining gas, call depth, and the stack's size at that point.
type TraceStep struct {
	PC         uint64
	Op         string
	Gas        uint64
	Cost       uint64
	Depth      int
	StackDepth int
}

// ConsoleLog is a decoded call into the well-known hardhat console.log
// precompile address, recognized during execution for debugging.
type ConsoleLog struct {
	Depth int
	Input []byte
}

// ConsoleLogAddress is the fixed address hardhat's console.log library
// targets; CALLs to it are never actually executed against state, only
// recorded.
var ConsoleLogAddress = common.HexToAddress("0x000000000000000000636F6e736F6c652e6c6f67")

// TxTrace is the result of tracing one transaction's execution.
type TxTrace struct {
	Steps       []TraceStep
	ConsoleLogs []ConsoleLog
	Failed      bool
	ReturnData  []byte
}

// structLogger implements vm.EVMLogger, recording one TraceStep per
// CaptureState call and flagging CALLs to ConsoleLogAddress.
type structLogger struct {
	t *TxTrace
}

func newStructLogger() *structLogger {
	return &structLogger{t: &TxTrace{}}
}

func (l *structLogger) hooks() vm.EVMLogger { return l }

func (l *structLogger) trace() *TxTrace { return l.t }

func (l *structLogger) CaptureTxStart(uint64) {}
func (l *structLogger) CaptureTxEnd(uint64)   {}

func (l *structLogger) CaptureStart(env *vm.EVM, from common.Address, to common.Address, create bool, input []byte, gas uint64, value *big.Int) {
	if to == ConsoleLogAddress {
		l.t.ConsoleLogs = append(l.t.ConsoleLogs, ConsoleLog{Input: input})
	}
}

func (l *structLogger) CaptureEnd(output []byte, gasUsed uint64, err error) {
	l.t.ReturnData = output
	l.t.Failed = err != nil
}

func (l *structLogger) CaptureEnter(typ vm.OpCode, from common.Address, to common.Address, input []byte, gas uint64, value *big.Int) {
	if to == ConsoleLogAddress {
		l.t.ConsoleLogs = append(l.t.ConsoleLogs, ConsoleLog{Input: input})
	}
}

func (l *structLogger) CaptureExit(output []byte, gasUsed uint64, err error) {}

func (l *structLogger) CaptureState(pc uint64, op vm.OpCode, gas, cost uint64, scope *vm.ScopeContext, rData []byte, depth int, err error) {
	stackDepth := 0
	if scope != nil && scope.Stack != nil {
		stackDepth = len(scope.Stack.Data())
	}
	l.t.Steps = append(l.t.Steps, TraceStep{
		PC:         pc,
		Op:         op.String(),
		Gas:        gas,
		Cost:       cost,
		Depth:      depth,
		StackDepth: stackDepth,
	})
}

func (l *structLogger) CaptureFault(pc uint64, op vm.OpCode, gas, cost uint64, scope *vm.ScopeContext, depth int, err error) {
}
