// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/AleutianAI/retrochadsql/services/pipeline"
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// CommandSpec describes one external program invocation.
type CommandSpec struct {
	// Name is the executable name or path.
	Name string

	// Args are the program arguments.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra KEY=VALUE pairs appended to the process environment.
	Env []string

	// Stdin, when set, is piped to the program.
	Stdin io.Reader

	// Stdout, when set, receives standard output. Only standard error is
	// captured in that case.
	Stdout io.Writer
}

// CommandRunner runs external programs (Chadwick tools, the SQL client).
//
// # Description
//
// Run executes spec synchronously. It returns the captured output: stdout
// and stderr combined, or stderr alone when spec.Stdout is set.
//
// # Outputs
//
//   - []byte: Captured output
//   - error: *pipeline.ToolError when the program cannot start or exits
//     non-zero; Output carries whatever was captured
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type CommandRunner interface {
	Run(ctx context.Context, spec CommandSpec) ([]byte, error)
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// ExecRunner implements CommandRunner using os/exec.
type ExecRunner struct{}

// NewExecRunner creates an ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command and waits for it.
func (r *ExecRunner) Run(ctx context.Context, spec CommandSpec) ([]byte, error) {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.Stdin = spec.Stdin

	var captured bytes.Buffer
	if spec.Stdout != nil {
		cmd.Stdout = spec.Stdout
	} else {
		cmd.Stdout = &captured
	}
	cmd.Stderr = &captured

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return captured.Bytes(), &pipeline.ToolError{
			Tool:     spec.Name,
			Args:     spec.Args,
			ExitCode: code,
			Output:   captured.String(),
			Err:      err,
		}
	}
	return captured.Bytes(), nil
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockRunner is a test double for CommandRunner.
//
// RunFunc decides each call's result. When RunFunc is nil every call
// succeeds with no output.
//
// # Examples
//
//	mock := &MockRunner{
//	    RunFunc: func(ctx context.Context, spec CommandSpec) ([]byte, error) {
//	        if spec.Name == "mysql" {
//	            return nil, &pipeline.ToolError{Tool: "mysql", ExitCode: 1}
//	        }
//	        return nil, nil
//	    },
//	}
type MockRunner struct {
	RunFunc func(ctx context.Context, spec CommandSpec) ([]byte, error)

	// Calls records every invocation, with Stdin drained into StdinData.
	Calls []MockCall

	mu sync.Mutex
}

// MockCall records a single invocation.
type MockCall struct {
	Spec      CommandSpec
	StdinData []byte
}

// Run records the call and delegates to RunFunc.
func (m *MockRunner) Run(ctx context.Context, spec CommandSpec) ([]byte, error) {
	call := MockCall{Spec: spec}
	if spec.Stdin != nil {
		data, err := io.ReadAll(spec.Stdin)
		if err != nil {
			return nil, err
		}
		call.StdinData = data
		spec.Stdin = bytes.NewReader(data)
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	fn := m.RunFunc
	m.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(ctx, spec)
}

// GetCalls returns a copy of all recorded calls.
func (m *MockRunner) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// Compile-time interface compliance check.
var (
	_ CommandRunner = (*ExecRunner)(nil)
	_ CommandRunner = (*MockRunner)(nil)
)
