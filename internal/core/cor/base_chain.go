// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cor (Chain of Responsibility) provides the fundamental building
// blocks for creating workflows as a sequence of commands. This file
// defines the `BaseChain`, the default implementation of the `Chain`
// interface.
//
// Logic Flow:
// A `BaseChain` is itself a `Command`, allowing chains to be nested within
// other chains. Its primary role is to execute a list of `Command` objects
// in a predefined order, managing the flow of execution and the "piping"
// of data between commands.
//
//  1. **Execution starts**: `Execute` is called with a shared context.
//  2. **Telemetry**: An OpenTelemetry span is created for the entire chain.
//  3. **Command Loop**: The chain iterates through its list of commands.
//  4. **Cancellation**: Before each command, the Go context is checked for
//     cancellation. Cancellation is cooperative: a command in flight is
//     allowed to finish, and the chain stops before starting the next one.
//  5. **Error Handling**: If the context already holds errors and
//     `continueOnFailure` is false (the default), the chain stops.
//  6. **Execution & Context Management**: For each command a child span is
//     created, the `cor.Context` is pointed at the child span's Go
//     context, the command executes, and the Go context is reset to the
//     chain's own so the trace hierarchy stays flat.
//  7. **Data Piping**: After a command runs, the value it placed in
//     `CtxOut` is moved to `CtxIn`, making the output of one command the
//     direct input of the next.
//  8. **Completion**: The chain's span is closed with a status reflecting
//     the final error state of the context.
package cor

import (
	"fmt"

	"go.opentelemetry.io/otel/codes"
)

// BaseChain is the default implementation of the Chain interface. It holds
// a slice of commands to be executed sequentially.
type BaseChain struct {
	BaseCommand
	continueOnFailure bool      // When true, later commands still run after an earlier one fails.
	commands          []Command // The ordered list of commands this chain executes.
}

// NewBaseChain is the constructor for BaseChain.
//
// Inputs:
//   - name: A string name for this chain instance, used for logging and
//     telemetry.
//
// Outputs:
//   - *BaseChain: A pointer to the newly instantiated chain.
func NewBaseChain(name string) *BaseChain {
	return &BaseChain{BaseCommand: *NewBaseCommand(name)}
}

// ContinueOnFailure is a builder method that sets the error handling
// behavior of the chain.
//
// Inputs:
//   - continueOnFailure: If true, the chain executes all of its commands
//     even when some add errors to the context. If false, the chain stops
//     at the first command that fails.
//
// Outputs:
//   - Chain: The chain instance, allowing fluent method chaining.
func (c *BaseChain) ContinueOnFailure(continueOnFailure bool) Chain {
	c.continueOnFailure = continueOnFailure
	return c
}

// AddCommand is a builder method that adds a command to the end of the
// chain's execution sequence.
//
// Inputs:
//   - command: A component that implements the `Command` interface.
//
// Outputs:
//   - Chain: The chain instance, allowing fluent method chaining.
func (c *BaseChain) AddCommand(command Command) Chain {
	c.commands = append(c.commands, command)
	return c
}

// IsExecutable checks if the chain can be executed. For a chain, this
// simply means that a valid Go context exists.
func (c *BaseChain) IsExecutable(context Context) bool {
	return context.GetContext() != nil
}

// Execute orchestrates the sequential execution of all commands in the
// chain.
//
// Inputs:
//   - chCtx: The shared `cor.Context` for the entire workflow execution.
func (c *BaseChain) Execute(chCtx Context) {
	// Keep a reference to the Go context this chain started with.
	parentCtx := chCtx.GetContext()

	// Start a span covering the entire chain execution.
	outerCtx, chainSpan := c.Tracer.Start(parentCtx, fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()

	for _, command := range c.commands {
		// Cooperative cancellation: stop before starting the next command
		// when the caller has given up on the run.
		if err := outerCtx.Err(); err != nil {
			chCtx.AddError(c.GetName(), err)
			chainSpan.SetStatus(codes.Error, "chain canceled")
			break
		}

		// Start a child span for the individual command so each step in the
		// chain is traced on its own.
		commandContext, commandSpan := c.Tracer.Start(outerCtx, command.GetName())
		commandSpan.SetName(command.GetName())

		// If a previous command failed and we are not configured to push
		// through failures, stop processing here.
		if chCtx.HasErrors() && !c.continueOnFailure {
			commandSpan.SetStatus(codes.Error, "previous error on chain; skipping execution")
			commandSpan.End()
			break
		}

		if command.IsExecutable(chCtx) {
			// Point the shared context at the command span's Go context so
			// work inside the command is traced under this command's span.
			chCtx.SetContext(commandContext)

			command.Execute(chCtx)

			// Reset to the chain's own context so the next command's span is
			// a sibling, not a grandchild, of this one.
			chCtx.SetContext(outerCtx)
		} else {
			commandSpan.SetStatus(codes.Error, fmt.Sprintf("command not executable: %s", command.GetName()))
		}

		if chCtx.HasErrors() {
			commandSpan.SetStatus(codes.Error, "error during or after command execution")
		} else {
			commandSpan.SetStatus(codes.Ok, "command completed successfully")
		}
		commandSpan.End()

		// Flip-flop the piped value: whatever the command left in CtxOut
		// becomes CtxIn for the next command.
		outputValue := chCtx.Get(CtxOut)
		chCtx.Remove(CtxIn)
		if outputValue != nil {
			chCtx.Add(CtxIn, outputValue)
		}
		chCtx.Remove(CtxOut)
	}

	if !chCtx.HasErrors() {
		chainSpan.SetStatus(codes.Ok, "chain completed successfully")
	} else {
		chainSpan.SetStatus(codes.Error, "chain failed to execute")
	}
}
