// Package mercury implements the parallel execution core of a logic
// programming language runtime: a work-stealing scheduler that runs
// lightweight execution contexts across a fixed pool of engines
// (OS-thread-backed workers), distributes fine-grained parallel work
// ("sparks") via per-engine deques, and coordinates the join barrier
// of parallel conjunctions.
//
// The surrounding runtime this core depends on — term representation,
// the bytecode/tracing interpreter, stack-zone allocation, garbage
// collection — is out of scope. Where the core needs *some*
// representation of "a point to resume execution at", it uses a Go
// closure (ProgramPoint) rather than a raw bytecode address: this
// keeps the scheduler itself fully testable without a term
// interpreter, while preserving every synchronization rule described
// for the real engine loop.
package mercury
