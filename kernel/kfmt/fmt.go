// Package kfmt implements the kernel's formatted output. Messages follow the
// "[module] message" convention and are routed to a single output sink.
package kfmt

import (
	"io"

	"github.com/yawqi/blog-os-yawqi/kernel/sync"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	// earlyPrintBuffer is a ring buffer that stores Printf output before an
	// output sink is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer

	// printer renders numeric arguments using English digit grouping so
	// that byte counts such as 102400 are printed as 102,400.
	printer = message.NewPrinter(language.English)

	outputLock sync.Spinlock
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	outputLock.Acquire()
	defer outputLock.Release()

	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the default target for calls to Printf.
func GetOutputSink() io.Writer {
	outputLock.Acquire()
	defer outputLock.Release()

	if outputSink == nil {
		return &earlyPrintBuffer
	}
	return outputSink
}

// Printf formats according to a format specifier and writes to the active
// output sink. It supports the verbs of the fmt package; integers formatted
// with %d are rendered with digit grouping.
//
// If no output sink has been set, the output is buffered into a ring-buffer
// and replayed into the sink once SetOutputSink is invoked.
func Printf(format string, args ...interface{}) {
	outputLock.Acquire()
	defer outputLock.Release()

	w := outputSink
	if w == nil {
		w = &earlyPrintBuffer
	}
	_, _ = printer.Fprintf(w, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		w = GetOutputSink()
	}
	_, _ = printer.Fprintf(w, format, args...)
}

// Sprintf behaves like Printf but returns the formatted output.
func Sprintf(format string, args ...interface{}) string {
	return printer.Sprintf(format, args...)
}
