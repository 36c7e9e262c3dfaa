// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package seccomp compiles the runtime document's linux.seccomp section
// into a loaded BPF filter via libseccomp-golang. Syscall names are
// resolved through the library's own resolver rather than a
// hand-maintained table, so a libc/kernel-version-specific syscall this
// package has never heard of still works as long as the host's
// libseccomp does.
package seccomp

import (
	"fmt"

	"github.com/linglong-ll/ll-box/internal/pkg/box/boxerr"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	libseccomp "github.com/seccomp/libseccomp-golang"
)

var actionTable = map[specs.LinuxSeccompAction]func() libseccomp.ScmpAction{
	specs.ActKill:    func() libseccomp.ScmpAction { return libseccomp.ActKill },
	specs.ActTrap:    func() libseccomp.ScmpAction { return libseccomp.ActTrap },
	specs.ActErrno:   func() libseccomp.ScmpAction { return libseccomp.ActErrno.SetReturnCode(1) },
	specs.ActTrace:   func() libseccomp.ScmpAction { return libseccomp.ActTrace.SetReturnCode(1) },
	specs.ActAllow:   func() libseccomp.ScmpAction { return libseccomp.ActAllow },
	specs.ActLog:     func() libseccomp.ScmpAction { return libseccomp.ActLog },
}

var archTable = map[specs.Arch]libseccomp.ScmpArch{
	specs.ArchX86:         libseccomp.ArchX86,
	specs.ArchX86_64:      libseccomp.ArchAMD64,
	specs.ArchX32:         libseccomp.ArchX32,
	specs.ArchARM:         libseccomp.ArchARM,
	specs.ArchAARCH64:     libseccomp.ArchARM64,
	specs.ArchMIPS:        libseccomp.ArchMIPS,
	specs.ArchMIPS64:      libseccomp.ArchMIPS64,
	specs.ArchMIPSEL:      libseccomp.ArchMIPSEL,
	specs.ArchMIPSEL64:    libseccomp.ArchMIPSEL64,
	specs.ArchPPC:         libseccomp.ArchPPC,
	specs.ArchPPC64:       libseccomp.ArchPPC64,
	specs.ArchPPC64LE:     libseccomp.ArchPPC64LE,
	specs.ArchS390:        libseccomp.ArchS390,
	specs.ArchS390X:       libseccomp.ArchS390X,
}

var opTable = map[specs.LinuxSeccompOperator]libseccomp.ScmpCompareOp{
	specs.OpNotEqual:     libseccomp.CompareNotEqual,
	specs.OpLessThan:     libseccomp.CompareLess,
	specs.OpLessEqual:    libseccomp.CompareLessOrEqual,
	specs.OpEqualTo:      libseccomp.CompareEqual,
	specs.OpGreaterEqual: libseccomp.CompareGreaterEqual,
	specs.OpGreaterThan:  libseccomp.CompareGreater,
	specs.OpMaskedEqual:  libseccomp.CompareMaskedEqual,
}

// Compile translates sc into a loaded seccomp-bpf filter and installs it
// on the calling thread. Any unknown action, architecture, or syscall
// name fails closed: the container is aborted rather than started with a
// partially-applied filter.
func Compile(sc *specs.LinuxSeccomp) error {
	if sc == nil {
		return nil
	}

	mkDefault, ok := actionTable[sc.DefaultAction]
	if !ok {
		return boxerr.NewParse("linux.seccomp.defaultAction", fmt.Errorf("unknown action %q", sc.DefaultAction))
	}

	filter, err := libseccomp.NewFilter(mkDefault())
	if err != nil {
		return boxerr.NewFatal("seccomp_new_filter", err)
	}

	for _, a := range sc.Architectures {
		arch, ok := archTable[a]
		if !ok {
			return boxerr.NewParse("linux.seccomp.architectures", fmt.Errorf("unknown architecture %q", a))
		}
		present, err := filter.ExistsArch(arch)
		if err != nil {
			return boxerr.NewFatal("seccomp_exists_arch", err)
		}
		if !present {
			if err := filter.AddArch(arch); err != nil {
				return boxerr.NewFatal("seccomp_add_arch", err)
			}
		}
	}

	for _, rule := range sc.Syscalls {
		mkAction, ok := actionTable[rule.Action]
		if !ok {
			return boxerr.NewParse("linux.seccomp.syscalls[].action", fmt.Errorf("unknown action %q", rule.Action))
		}
		for _, name := range rule.Names {
			num, err := libseccomp.GetSyscallFromName(name)
			if err != nil {
				return boxerr.NewParse("linux.seccomp.syscalls[].names", fmt.Errorf("unknown syscall %q: %w", name, err))
			}
			conds, err := buildConditions(rule.Args)
			if err != nil {
				return boxerr.NewParse("linux.seccomp.syscalls[].args", err)
			}
			if len(conds) == 0 {
				err = filter.AddRule(num, mkAction())
			} else {
				err = filter.AddRuleConditional(num, mkAction(), conds)
			}
			if err != nil {
				return boxerr.NewFatal("seccomp_add_rule", fmt.Errorf("%s: %w", name, err))
			}
		}
	}

	if err := filter.Load(); err != nil {
		return boxerr.NewFatal("seccomp_load", err)
	}
	return nil
}

func buildConditions(args []specs.LinuxSeccompArg) ([]libseccomp.ScmpCondition, error) {
	var conds []libseccomp.ScmpCondition
	for _, a := range args {
		op, ok := opTable[a.Op]
		if !ok {
			return nil, fmt.Errorf("unknown comparison operator %q", a.Op)
		}
		conds = append(conds, libseccomp.ScmpCondition{
			Argument: a.Index,
			Op:       op,
			Operand1: a.Value,
			Operand2: a.ValueTwo,
		})
	}
	return conds, nil
}
