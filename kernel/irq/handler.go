// Package irq dispatches exceptions and interrupts on the simulated
// processor. Exceptions are synchronous and run their registered handler
// immediately; interrupts are asynchronous and are held pending while
// interrupt handling is disabled.
package irq

import (
	"github.com/yawqi/blog-os-yawqi/kernel"
	"github.com/yawqi/blog-os-yawqi/kernel/cpu"
	"github.com/yawqi/blog-os-yawqi/kernel/sync"
)

// ExceptionNum defines an exception number that can be
// passed to the HandleException and HandleExceptionWithCode
// functions.
type ExceptionNum uint8

const (
	// DoubleFault occurs when an exception is unhandled
	// or when an exception occurs while the CPU is
	// trying to call an exception handler.
	DoubleFault = ExceptionNum(8)

	// GPFException is raised when a general protection fault occurs.
	GPFException = ExceptionNum(13)

	// PageFaultException is raised when a PDT or
	// PDT-entry is not present or when a privilege
	// and/or RW protection check fails.
	PageFaultException = ExceptionNum(14)
)

// ExceptionHandler is a function that handles an exception that does not push
// an error code to the stack.
type ExceptionHandler func(*Frame, *Regs)

// ExceptionHandlerWithCode is a function that handles an exception that pushes
// an error code to the stack.
type ExceptionHandlerWithCode func(uint64, *Frame, *Regs)

// Handler is a function that services an asynchronous interrupt.
type Handler func()

var (
	errUnhandledException = &kernel.Error{Module: "irq", Message: "unhandled exception"}

	handlerLock      sync.Spinlock
	handlers         = map[ExceptionNum]ExceptionHandler{}
	handlersWithCode = map[ExceptionNum]ExceptionHandlerWithCode{}

	pendingLock sync.Spinlock
	pending     []Handler
)

// HandleException registers an exception handler (without an error code) for
// the given interrupt number.
func HandleException(exceptionNum ExceptionNum, handler ExceptionHandler) {
	handlerLock.Acquire()
	handlers[exceptionNum] = handler
	handlerLock.Release()
}

// HandleExceptionWithCode registers an exception handler (with an error code)
// for the given interrupt number.
func HandleExceptionWithCode(exceptionNum ExceptionNum, handler ExceptionHandlerWithCode) {
	handlerLock.Acquire()
	handlersWithCode[exceptionNum] = handler
	handlerLock.Release()
}

// RaiseException invokes the handler registered for exceptionNum. Handlers
// registered with an error code receive errorCode. If no handler exists the
// exception escalates to a double fault and, if that is also unhandled,
// RaiseException panics.
func RaiseException(exceptionNum ExceptionNum, errorCode uint64, frame *Frame, regs *Regs) {
	handlerLock.Acquire()
	withCode, hasWithCode := handlersWithCode[exceptionNum]
	plain, hasPlain := handlers[exceptionNum]
	handlerLock.Release()

	switch {
	case hasWithCode:
		withCode(errorCode, frame, regs)
	case hasPlain:
		plain(frame, regs)
	case exceptionNum != DoubleFault:
		RaiseException(DoubleFault, 0, frame, regs)
	default:
		panic(errUnhandledException)
	}
}

// Disable masks interrupt delivery. Calls nest; interrupts are only
// delivered again once every Disable has been matched by an Enable.
func Disable() {
	cpu.DisableInterrupts()
}

// Enable undoes a previous call to Disable. If interrupts become enabled,
// any interrupts raised while they were masked are delivered before Enable
// returns.
func Enable() {
	if cpu.EnableInterrupts() {
		deliverPending()
	}
}

// Raise signals an interrupt. If interrupts are enabled h runs immediately;
// otherwise it is queued and runs when interrupts are re-enabled.
func Raise(h Handler) {
	pendingLock.Acquire()
	if !cpu.InterruptsEnabled() {
		pending = append(pending, h)
		pendingLock.Release()
		return
	}
	pendingLock.Release()

	dispatch(h)
}

// Pending returns the number of interrupts waiting for delivery.
func Pending() int {
	pendingLock.Acquire()
	defer pendingLock.Release()
	return len(pending)
}

// dispatch runs h with interrupts masked, the way the CPU clears IF when
// entering an interrupt gate.
func dispatch(h Handler) {
	cpu.DisableInterrupts()
	h()
	Enable()
}

func deliverPending() {
	for {
		pendingLock.Acquire()
		if len(pending) == 0 || !cpu.InterruptsEnabled() {
			pendingLock.Release()
			return
		}
		h := pending[0]
		pending = pending[1:]
		pendingLock.Release()

		dispatch(h)
	}
}

// reset drops all registered handlers and pending interrupts. It is used by
// tests.
func reset() {
	handlerLock.Acquire()
	handlers = map[ExceptionNum]ExceptionHandler{}
	handlersWithCode = map[ExceptionNum]ExceptionHandlerWithCode{}
	handlerLock.Release()

	pendingLock.Acquire()
	pending = nil
	pendingLock.Release()
}
