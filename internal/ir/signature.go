package ir

// checkSignature validates operand and result types for an opcode. Operand
// counts were already checked against the opcode arity.
func checkSignature(op OpCode, result Type, operands []Type) error {
	fail := func(format string, args ...any) error {
		return buildErrf(ErrTypeMismatch, "%s: "+format, append([]any{op}, args...)...)
	}
	same := func(a, b Type) bool { return a.Equal(b) }

	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMin, OpMax:
		if !operands[0].IsNumeric() {
			return fail("operands must be numeric, got %s", operands[0])
		}
		if !same(operands[0], operands[1]) {
			return fail("operand types differ: %s vs %s", operands[0], operands[1])
		}
		if !same(result, operands[0]) {
			return fail("result %s does not match operands %s", result, operands[0])
		}

	case OpPow:
		if !operands[0].IsFloat() || !same(operands[0], operands[1]) || !same(result, operands[0]) {
			return fail("requires matching float operands, got %s and %s", operands[0], operands[1])
		}

	case OpNeg, OpAbs:
		if !operands[0].IsNumeric() || !same(result, operands[0]) {
			return fail("requires a numeric operand, got %s", operands[0])
		}

	case OpSqrt, OpExp, OpLog, OpSin, OpCos:
		if !operands[0].IsFloat() || !same(result, operands[0]) {
			return fail("requires a float operand, got %s", operands[0])
		}

	case OpDot:
		if operands[0].Kind != KindVector || !operands[0].IsFloat() {
			return fail("requires float vectors, got %s", operands[0])
		}
		if !same(operands[0], operands[1]) {
			return fail("operand types differ: %s vs %s", operands[0], operands[1])
		}
		if !same(result, operands[0].ElemType()) {
			return fail("result must be %s, got %s", operands[0].ElemType(), result)
		}

	case OpMatVec:
		m, v := operands[0], operands[1]
		if m.Kind != KindMatrix || v.Kind != KindVector || m.Count != v.Count ||
			m.Elem.Scalar != v.Elem.Scalar {
			return fail("requires matN*vecN of one element kind, got %s and %s", m, v)
		}
		if !same(result, v) {
			return fail("result must be %s, got %s", v, result)
		}

	case OpMatMul:
		if operands[0].Kind != KindMatrix || !same(operands[0], operands[1]) || !same(result, operands[0]) {
			return fail("requires matching matrices, got %s and %s", operands[0], operands[1])
		}

	case OpTranspose:
		if operands[0].Kind != KindMatrix || !same(result, operands[0]) {
			return fail("requires a matrix, got %s", operands[0])
		}

	case OpOuter:
		if operands[0].Kind != KindVector || !same(operands[0], operands[1]) {
			return fail("requires matching vectors, got %s and %s", operands[0], operands[1])
		}
		want := MatrixType(operands[0].Elem.Scalar, operands[0].Count)
		if !same(result, want) {
			return fail("result must be %s, got %s", want, result)
		}

	case OpMakeVector:
		if result.Kind != KindVector || len(operands) != result.Count {
			return fail("result %s needs %d lanes, got %d", result, result.Count, len(operands))
		}
		for _, o := range operands {
			if !o.IsScalar() || o.Scalar != result.Elem.Scalar {
				return fail("lane type %s does not match %s", o, result)
			}
		}

	case OpMakeMatrix:
		if result.Kind != KindMatrix || len(operands) != result.Count {
			return fail("result %s needs %d columns, got %d", result, result.Count, len(operands))
		}
		col := VectorType(result.Elem.Scalar, result.Count)
		for _, o := range operands {
			if !same(o, col) {
				return fail("column type %s does not match %s", o, col)
			}
		}

	case OpEq, OpNe:
		if !same(operands[0], operands[1]) || !operands[0].IsScalar() {
			return fail("requires matching scalars, got %s and %s", operands[0], operands[1])
		}
		if !(result.IsScalar() && result.Scalar == Bool) {
			return fail("result must be bool")
		}

	case OpLt, OpLe, OpGt, OpGe:
		if !operands[0].IsScalar() || operands[0].Scalar == Bool || !same(operands[0], operands[1]) {
			return fail("requires matching numeric scalars, got %s and %s", operands[0], operands[1])
		}
		if !(result.IsScalar() && result.Scalar == Bool) {
			return fail("result must be bool")
		}

	case OpNot:
		if !(operands[0].IsScalar() && operands[0].Scalar == Bool) {
			return fail("requires bool, got %s", operands[0])
		}

	case OpAnd, OpOr:
		for _, o := range operands {
			if !(o.IsScalar() && o.Scalar == Bool) {
				return fail("requires bool operands, got %s", o)
			}
		}

	case OpSelect:
		if !(operands[0].IsScalar() && operands[0].Scalar == Bool) {
			return fail("condition must be bool, got %s", operands[0])
		}
		if !same(operands[1], operands[2]) || !same(result, operands[1]) {
			return fail("arms must match result: %s, %s vs %s", operands[1], operands[2], result)
		}

	case OpCast:
		if !operands[0].IsScalar() || operands[0].Scalar == Bool ||
			!result.IsScalar() || result.Scalar == Bool {
			return fail("requires numeric scalars, got %s -> %s", operands[0], result)
		}

	case OpLoad:
		if err := wantBuffer(op, operands[0]); err != nil {
			return err
		}
		if err := wantIndex(op, operands[1]); err != nil {
			return err
		}
		if !same(result, operands[0].ElemType()) {
			return fail("result %s does not match buffer element %s", result, operands[0].ElemType())
		}

	case OpStore:
		if err := wantBuffer(op, operands[0]); err != nil {
			return err
		}
		if err := wantIndex(op, operands[1]); err != nil {
			return err
		}
		if !same(operands[2], operands[0].ElemType()) {
			return fail("stored value %s does not match buffer element %s", operands[2], operands[0].ElemType())
		}

	case OpBufferLen:
		if err := wantBuffer(op, operands[0]); err != nil {
			return err
		}

	case OpBindlessLoad:
		if err := wantBindless(op, operands[0]); err != nil {
			return err
		}
		if err := wantIndex(op, operands[1]); err != nil {
			return err
		}
		if err := wantIndex(op, operands[2]); err != nil {
			return err
		}
		if result.IsVoid() || result.IsResource() {
			return fail("declared element type %s is not loadable", result)
		}

	case OpBindlessStore:
		if err := wantBindless(op, operands[0]); err != nil {
			return err
		}
		if err := wantIndex(op, operands[1]); err != nil {
			return err
		}
		if err := wantIndex(op, operands[2]); err != nil {
			return err
		}

	case OpAtomicAdd:
		if err := wantBuffer(op, operands[0]); err != nil {
			return err
		}
		if err := wantIndex(op, operands[1]); err != nil {
			return err
		}
		elem := operands[0].ElemType()
		if !elem.IsScalar() || elem.Scalar == Bool {
			return fail("buffer element must be a numeric scalar, got %s", elem)
		}
		if !same(operands[2], elem) || !same(result, elem) {
			return fail("delta and result must be %s", elem)
		}

	case OpAtomicCAS:
		if err := wantBuffer(op, operands[0]); err != nil {
			return err
		}
		if err := wantIndex(op, operands[1]); err != nil {
			return err
		}
		elem := operands[0].ElemType()
		if !elem.IsScalar() || !elem.Scalar.IsInteger() {
			return fail("buffer element must be an integer scalar, got %s", elem)
		}
		if !same(operands[2], elem) || !same(operands[3], elem) || !same(result, elem) {
			return fail("expected, desired and result must be %s", elem)
		}

	case OpPhi:
		for _, o := range operands {
			if !same(o, result) {
				return fail("incoming type %s does not match %s", o, result)
			}
		}

	case OpRequiresGrad:
		if !operands[0].IsFloat() {
			return fail("only float values can request gradients, got %s", operands[0])
		}

	case OpBackward:
		if !(operands[0].IsScalar() && operands[0].Scalar.IsFloat()) {
			return fail("backward output must be a float scalar, got %s", operands[0])
		}

	case OpGradient:
		if !operands[0].IsFloat() || !same(result, operands[0]) {
			return fail("gradient of %s must have the same float type", operands[0])
		}

	case OpCondBranch:
		if !(operands[0].IsScalar() && operands[0].Scalar == Bool) {
			return fail("condition must be bool, got %s", operands[0])
		}

	case OpSwitch:
		if !(operands[0].IsScalar() && operands[0].Scalar.IsInteger()) {
			return fail("tag must be an integer scalar, got %s", operands[0])
		}
	}
	return nil
}

func wantBuffer(op OpCode, t Type) error {
	if t.Kind != KindResource || t.Resource != ResBuffer {
		return buildErrf(ErrTypeMismatch, "%s: expected a buffer resource, got %s", op, t)
	}
	return nil
}

func wantBindless(op OpCode, t Type) error {
	if t.Kind != KindResource || t.Resource != ResBindless {
		return buildErrf(ErrTypeMismatch, "%s: expected a bindless array, got %s", op, t)
	}
	return nil
}

func wantIndex(op OpCode, t Type) error {
	if !t.IsScalar() || !t.Scalar.IsInteger() {
		return buildErrf(ErrTypeMismatch, "%s: index must be an integer scalar, got %s", op, t)
	}
	return nil
}
