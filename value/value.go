// Copyright 2026 Lumen Compute. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package value provides the runtime value representation used to bind kernel
// arguments and read back buffer contents.
package value

import (
	"github.com/lumen-compute/lumen/internal/ir"
	"github.com/lumen-compute/lumen/internal/value"
)

// Value is one runtime value: a scalar, vector, matrix or aggregate. The zero
// Value is the absence of a value.
type Value = value.Value

// Bool returns a boolean scalar.
func Bool(b bool) Value { return value.Bool(b) }

// Int returns an integer scalar of the given kind.
func Int(kind ir.ScalarKind, v int64) Value { return value.Int(kind, v) }

// Float returns a floating-point scalar of the given kind.
func Float(kind ir.ScalarKind, v float64) Value { return value.Float(kind, v) }

// Vector returns a vector from its lanes.
func Vector(kind ir.ScalarKind, lanes ...Value) Value { return value.Vector(kind, lanes...) }

// Matrix returns a square matrix from its column-major elements.
func Matrix(kind ir.ScalarKind, dim int, colMajor []Value) Value {
	return value.Matrix(kind, dim, colMajor)
}

// Zero returns the zero value of the given type.
func Zero(t ir.Type) Value { return value.Zero(t) }

// One returns the multiplicative identity of the given numeric type.
func One(t ir.Type) Value { return value.One(t) }
