// Package gen selects a backend for a validated program.
package gen

import (
	"fmt"
	"strings"

	"github.com/kartiknair/pasc/pkg/ast"
	"github.com/kartiknair/pasc/pkg/gen/ewvm"
	llvmgen "github.com/kartiknair/pasc/pkg/gen/llvm"
)

type Target string

const (
	TargetEWVM Target = "ewvm"
	TargetLLVM Target = "llvm"
)

func (t Target) Extension() string {
	if t == TargetLLVM {
		return ".ll"
	}
	return ".vm"
}

// ParseTarget accepts a target name in any case.
func ParseTarget(name string) (Target, error) {
	switch t := Target(strings.ToLower(name)); t {
	case TargetEWVM, TargetLLVM:
		return t, nil
	}
	return "", fmt.Errorf("unknown target '%s', expected '%s' or '%s'", name, TargetEWVM, TargetLLVM)
}

func EWVM(program *ast.Program) ([]string, error) {
	return ewvm.Gen(program)
}

func LLVM(program *ast.Program) (string, error) {
	return llvmgen.Gen(program)
}
