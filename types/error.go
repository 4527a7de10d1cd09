package types

import (
	"fmt"
	"time"

	"github.com/juju/errors"
)

var (
	_ error = &ConstructionError{}
	_ error = &NodeRuntimeError{}
	_ error = &ResponseTimeoutError{}
	_ error = &TerminalFailure{}
)

func NewConstructionError(node string, otherErr error) error {
	return &ConstructionError{baseError: newBaseErr(otherErr), Node: node}
}

func NewConstructionErrorf(node string, format string, args ...interface{}) error {
	return NewConstructionError(node, errors.Errorf(format, args...))
}

func NewNodeRuntimeError(node string, tick int64, phase Phase, otherErr error) error {
	return &NodeRuntimeError{baseError: newBaseErr(otherErr), Node: node, Tick: tick, Phase: phase}
}

func NewResponseTimeoutError(node string, tick int64, timeout time.Duration) error {
	return &ResponseTimeoutError{
		baseError: newBaseErr(errors.Timeoutf("response after %v", timeout)),
		Node:      node,
		Tick:      tick,
		Timeout:   timeout,
	}
}

func NewTerminalFailure(node string, tick int64, otherErr error) error {
	return &TerminalFailure{baseError: newBaseErr(otherErr), Node: node, Tick: tick}
}

func IsConstructionError(err error) bool {
	var target *ConstructionError
	return errors.As(err, &target)
}

func IsNodeRuntimeError(err error) bool {
	var target *NodeRuntimeError
	return errors.As(err, &target)
}

func IsResponseTimeout(err error) bool {
	var target *ResponseTimeoutError
	return errors.As(err, &target)
}

func IsTerminalFailure(err error) bool {
	var target *TerminalFailure
	return errors.As(err, &target)
}

func newBaseErr(otherErr error) *baseError {
	return &baseError{unwrapErr(otherErr)}
}

func unwrapErr(err error) error {
	if err == nil {
		return nil
	}
	if ue, ok := err.(wrappedErr); ok {
		return unwrapErr(ue.UnwrapLocal())
	}
	return err
}

type wrappedErr interface {
	UnwrapLocal() error
}

type baseError struct {
	BaseErr error
}

func (e *baseError) Error() string {
	if e.BaseErr == nil {
		return "<nil>"
	}
	return e.BaseErr.Error()
}

func (e *baseError) UnwrapLocal() error {
	return e.BaseErr
}

// ConstructionError is raised while building a feature tree, before any
// goroutine of the acquisition starts.
type ConstructionError struct {
	*baseError
	Node string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("construct %s: %s", e.Node, e.baseError.Error())
}

// NodeRuntimeError wraps a failure inside a feature callback. It never
// crosses the goroutine boundary; the node's verdict degrades to false.
type NodeRuntimeError struct {
	*baseError
	Node  string
	Tick  int64
	Phase Phase
}

func (e *NodeRuntimeError) Error() string {
	return fmt.Sprintf("node %s %s phase at tick %d: %s", e.Node, e.Phase, e.Tick, e.baseError.Error())
}

type ResponseTimeoutError struct {
	*baseError
	Node    string
	Tick    int64
	Timeout time.Duration
}

func (e *ResponseTimeoutError) Error() string {
	return fmt.Sprintf("node %s at tick %d: no response within %v", e.Node, e.Tick, e.Timeout)
}

// TerminalFailure aborts the acquisition.
type TerminalFailure struct {
	*baseError
	Node string
	Tick int64
}

func (e *TerminalFailure) Error() string {
	return fmt.Sprintf("acquisition aborted at node %s tick %d: %s", e.Node, e.Tick, e.baseError.Error())
}
