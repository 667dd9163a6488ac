// Package perrors defines the structured error kinds surfaced by the
// core. Kinds that carry a proximate cause (ChannelDataError,
// LoaderError, FetchError, CommitError) wrap it with
// github.com/pkg/errors so the original stack/context survives;
// DependencyError also implements traceString() for the CLI's --explain
// output.
package perrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// traceError is implemented by error kinds that can expand into a
// fuller explanation chain for --explain.
type traceError interface {
	traceString() string
}

// TraceString returns the --explain expansion of err if it implements
// traceString, or err.Error() otherwise.
func TraceString(err error) string {
	if te, ok := err.(traceError); ok {
		return te.traceString()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// UsageError signals CLI argument parsing or misuse (exit code 2).
type UsageError struct {
	Message string
	cause   error
}

func NewUsageError(msg string) *UsageError { return &UsageError{Message: msg} }

func (e *UsageError) Error() string { return e.Message }
func (e *UsageError) Unwrap() error { return e.cause }

// ChannelDataError signals a malformed channel record.
type ChannelDataError struct {
	Alias string
	cause error
}

func NewChannelDataError(alias string, cause error) *ChannelDataError {
	return &ChannelDataError{Alias: alias, cause: errors.WithStack(cause)}
}

func (e *ChannelDataError) Error() string {
	return fmt.Sprintf("malformed channel %q: %s", e.Alias, e.cause)
}
func (e *ChannelDataError) Unwrap() error { return e.cause }

// LoaderError signals a backend could not parse metadata.
type LoaderError struct {
	Channel string
	cause   error
}

func NewLoaderError(channel string, cause error) *LoaderError {
	return &LoaderError{Channel: channel, cause: errors.WithStack(cause)}
}

func (e *LoaderError) Error() string {
	return fmt.Sprintf("loader for channel %q failed: %s", e.Channel, e.cause)
}
func (e *LoaderError) Unwrap() error { return e.cause }

// FetchError signals a network, checksum, or decompression failure for
// one fetcher item; a fetch run aggregates these.
type FetchError struct {
	URL   string
	cause error
}

func NewFetchError(url string, cause error) *FetchError {
	return &FetchError{URL: url, cause: errors.WithStack(cause)}
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.URL, e.cause)
}
func (e *FetchError) Unwrap() error { return e.cause }

// DependencyError signals an unsatisfiable requirement or irresolvable
// conflict, carrying the chain of unmet relations for --explain.
type DependencyError struct {
	Message string
	Chain   []string
}

func NewDependencyError(msg string, chain ...string) *DependencyError {
	return &DependencyError{Message: msg, Chain: chain}
}

func (e *DependencyError) Error() string { return e.Message }

func (e *DependencyError) traceString() string {
	s := e.Message
	for _, c := range e.Chain {
		s += "\n\t" + c
	}
	return s
}

// LockedError signals a required state change was blocked by a lock.
type LockedError struct {
	Package string
}

func NewLockedError(pkg string) *LockedError {
	return &LockedError{Package: pkg}
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s is locked and cannot be changed", e.Package)
}

// PolicyError signals that no provider candidate met policy constraints.
type PolicyError struct {
	Message string
}

func NewPolicyError(msg string) *PolicyError { return &PolicyError{Message: msg} }

func (e *PolicyError) Error() string { return e.Message }

// TransactionError signals an inconsistent changeset after propagation;
// this should not happen and indicates a solver bug.
type TransactionError struct {
	Message string
}

func NewTransactionError(msg string) *TransactionError {
	return &TransactionError{Message: msg}
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("internal: inconsistent changeset: %s", e.Message)
}

// CommitError signals the backend refused or aborted a step, carrying
// the step that failed.
type CommitError struct {
	Op      string
	Package string
	cause   error
}

func NewCommitError(op, pkg string, cause error) *CommitError {
	return &CommitError{Op: op, Package: pkg, cause: errors.WithStack(cause)}
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit step %s %s failed: %s", e.Op, e.Package, e.cause)
}
func (e *CommitError) Unwrap() error { return e.cause }
