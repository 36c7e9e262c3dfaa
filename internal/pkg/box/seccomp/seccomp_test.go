// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package seccomp

import (
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"gotest.tools/v3/assert"
)

func TestCompileNilIsNoOp(t *testing.T) {
	assert.NilError(t, Compile(nil))
}

func TestCompileRejectsUnknownDefaultAction(t *testing.T) {
	err := Compile(&specs.LinuxSeccomp{DefaultAction: "SCMP_ACT_NOT_A_REAL_ACTION"})
	assert.ErrorContains(t, err, "unknown action")
}

func TestBuildConditionsRejectsUnknownOperator(t *testing.T) {
	_, err := buildConditions([]specs.LinuxSeccompArg{{Index: 0, Op: "not_a_real_op"}})
	assert.ErrorContains(t, err, "unknown comparison operator")
}

func TestBuildConditionsTranslatesEqualTo(t *testing.T) {
	conds, err := buildConditions([]specs.LinuxSeccompArg{{Index: 1, Op: specs.OpEqualTo, Value: 42}})
	assert.NilError(t, err)
	assert.Equal(t, len(conds), 1)
	assert.Equal(t, conds[0].Argument, uint(1))
	assert.Equal(t, conds[0].Operand1, uint64(42))
}
