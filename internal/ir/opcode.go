package ir

// OpCode identifies the operation a node performs.
type OpCode int

// Node opcodes. Terminator opcodes (OpJump and later) may only appear as the
// final node of a block.
const (
	OpInvalid OpCode = iota

	// Leaves.
	OpConst      // constant; payload in Node.ConstValue
	OpArg        // kernel argument; AuxInt is the argument index
	OpCapture    // externally bound resource; AuxInt is the capture index
	OpDispatchID // work-item coordinate; AuxInt is the axis (0=x, 1=y, 2=z)

	// Scalar/vector/matrix arithmetic (elementwise unless noted).
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpNeg
	OpMin
	OpMax
	OpAbs
	OpSqrt
	OpExp
	OpLog
	OpSin
	OpCos
	OpPow

	// Linear algebra.
	OpDot    // dot(vecN, vecN) -> scalar
	OpMatVec // matN * vecN -> vecN
	OpMatMul // matN * matN -> matN
	OpTranspose
	OpOuter // outer(vecN, vecN) -> matN

	// Aggregate construction and access.
	OpMakeVector
	OpMakeMatrix // operands are column vectors
	OpExtract    // AuxInt is the lane/field index
	OpInsert     // AuxInt is the lane/field index; operands [agg, value]

	// Comparison and logic.
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpNot
	OpAnd
	OpOr
	OpSelect // operands [cond, ifTrue, ifFalse]
	OpCast

	// Memory. Every access is bounds-checked at execution time; bindless
	// accesses are additionally type-tag-checked.
	OpLoad          // operands [buffer, index]
	OpStore         // operands [buffer, index, value]
	OpBufferLen     // operands [buffer]
	OpBindlessLoad  // operands [bindless, slot, index]; result type declares the expected element
	OpBindlessStore // operands [bindless, slot, index, value]
	OpAtomicAdd     // operands [buffer, index, delta]; returns the old value
	OpAtomicCAS     // operands [buffer, index, expected, desired]; returns the old value
	OpBarrier

	// SSA merge.
	OpPhi // one operand per predecessor; Node.Incoming lists the edges

	// Host interop: calls a function registered on the execution side,
	// looked up by Node.Sym.
	OpCustomCall

	// Autodiff region markers, rewritten/serviced by the autodiff transform
	// and the interpreter.
	OpRequiresGrad // operands [x]
	OpBackward     // operands [output]
	OpGradient     // operands [x]; result has x's type

	// Terminators.
	OpJump       // Targets[0]
	OpCondBranch // operands [cond]; Targets[0]=then, Targets[1]=else
	OpSwitch     // operands [tag]; Cases[i] selects Targets[i]; optional default is the last target
	OpReturn     // operands [] or [value]
)

var opNames = map[OpCode]string{
	OpConst:         "const",
	OpArg:           "arg",
	OpCapture:       "capture",
	OpDispatchID:    "dispatch_id",
	OpAdd:           "add",
	OpSub:           "sub",
	OpMul:           "mul",
	OpDiv:           "div",
	OpNeg:           "neg",
	OpMin:           "min",
	OpMax:           "max",
	OpAbs:           "abs",
	OpSqrt:          "sqrt",
	OpExp:           "exp",
	OpLog:           "log",
	OpSin:           "sin",
	OpCos:           "cos",
	OpPow:           "pow",
	OpDot:           "dot",
	OpMatVec:        "matvec",
	OpMatMul:        "matmul",
	OpTranspose:     "transpose",
	OpOuter:         "outer",
	OpMakeVector:    "make_vector",
	OpMakeMatrix:    "make_matrix",
	OpExtract:       "extract",
	OpInsert:        "insert",
	OpEq:            "eq",
	OpNe:            "ne",
	OpLt:            "lt",
	OpLe:            "le",
	OpGt:            "gt",
	OpGe:            "ge",
	OpNot:           "not",
	OpAnd:           "and",
	OpOr:            "or",
	OpSelect:        "select",
	OpCast:          "cast",
	OpLoad:          "load",
	OpStore:         "store",
	OpBufferLen:     "buffer_len",
	OpBindlessLoad:  "bindless_load",
	OpBindlessStore: "bindless_store",
	OpAtomicAdd:     "atomic_add",
	OpAtomicCAS:     "atomic_cas",
	OpBarrier:       "barrier",
	OpPhi:           "phi",
	OpCustomCall:    "custom_call",
	OpRequiresGrad:  "requires_grad",
	OpBackward:      "backward",
	OpGradient:      "gradient",
	OpJump:          "jump",
	OpCondBranch:    "cond_branch",
	OpSwitch:        "switch",
	OpReturn:        "return",
}

// String returns the lowercase mnemonic for the opcode.
func (op OpCode) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "invalid"
}

// IsTerminator reports whether the opcode may only end a block.
func (op OpCode) IsTerminator() bool {
	switch op {
	case OpJump, OpCondBranch, OpSwitch, OpReturn:
		return true
	}
	return false
}

// HasSideEffects reports whether the node must execute even if its result is
// unused.
func (op OpCode) HasSideEffects() bool {
	switch op {
	case OpStore, OpBindlessStore, OpAtomicAdd, OpAtomicCAS, OpBarrier,
		OpCustomCall, OpRequiresGrad, OpBackward:
		return true
	}
	return op.IsTerminator()
}

// arity returns the fixed operand count for an opcode, or -1 when variable.
func (op OpCode) arity() int {
	switch op {
	case OpConst, OpArg, OpCapture, OpDispatchID, OpBarrier, OpJump:
		return 0
	case OpNeg, OpAbs, OpSqrt, OpExp, OpLog, OpSin, OpCos, OpNot, OpCast,
		OpTranspose, OpExtract, OpBufferLen, OpRequiresGrad, OpBackward,
		OpGradient, OpCondBranch, OpSwitch:
		return 1
	case OpAdd, OpSub, OpMul, OpDiv, OpMin, OpMax, OpPow, OpDot, OpMatVec,
		OpMatMul, OpOuter, OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpAnd, OpOr,
		OpLoad, OpInsert:
		return 2
	case OpSelect, OpStore, OpAtomicAdd, OpBindlessLoad:
		return 3
	case OpAtomicCAS, OpBindlessStore:
		return 4
	default:
		// OpMakeVector, OpMakeMatrix, OpPhi, OpCustomCall, OpReturn.
		return -1
	}
}
