package irq

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yawqi/blog-os-yawqi/kernel/cpu"
	"github.com/yawqi/blog-os-yawqi/kernel/kfmt"
)

func TestRaiseException(t *testing.T) {
	defer reset()

	t.Run("handler with code", func(t *testing.T) {
		reset()
		var gotCode uint64
		HandleExceptionWithCode(PageFaultException, func(code uint64, _ *Frame, _ *Regs) {
			gotCode = code
		})

		RaiseException(PageFaultException, 2, &Frame{}, &Regs{})
		assert.Equal(t, uint64(2), gotCode)
	})

	t.Run("handler without code", func(t *testing.T) {
		reset()
		var called bool
		HandleException(GPFException, func(_ *Frame, _ *Regs) { called = true })

		RaiseException(GPFException, 0, &Frame{}, &Regs{})
		assert.True(t, called)
	})

	t.Run("unhandled escalates to double fault", func(t *testing.T) {
		reset()
		var called bool
		HandleException(DoubleFault, func(_ *Frame, _ *Regs) { called = true })

		RaiseException(PageFaultException, 0, &Frame{}, &Regs{})
		assert.True(t, called)
	})

	t.Run("unhandled double fault panics", func(t *testing.T) {
		reset()
		require.PanicsWithValue(t, errUnhandledException, func() {
			RaiseException(PageFaultException, 0, &Frame{}, &Regs{})
		})
	})
}

func TestRaiseWhileEnabled(t *testing.T) {
	defer func() {
		reset()
		cpu.Reset()
	}()
	cpu.Reset()

	var (
		called      bool
		maskedInISR bool
	)
	Raise(func() {
		called = true
		maskedInISR = !cpu.InterruptsEnabled()
	})

	assert.True(t, called)
	assert.True(t, maskedInISR, "expected interrupts to be masked while the handler runs")
	assert.True(t, cpu.InterruptsEnabled())
}

func TestRaiseWhileDisabled(t *testing.T) {
	defer func() {
		reset()
		cpu.Reset()
	}()
	cpu.Reset()

	var order []int

	Disable()
	Disable()
	Raise(func() { order = append(order, 1) })
	Raise(func() { order = append(order, 2) })
	require.Equal(t, 2, Pending())
	require.Empty(t, order)

	// Still nested
	Enable()
	require.Empty(t, order)

	Enable()
	assert.Equal(t, []int{1, 2}, order)
	assert.Zero(t, Pending())
}

func TestRaiseConcurrent(t *testing.T) {
	defer func() {
		reset()
		cpu.Reset()
	}()
	cpu.Reset()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		count int
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				Disable()
				Raise(func() {
					mu.Lock()
					count++
					mu.Unlock()
				})
				Enable()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, count)
	assert.Zero(t, Pending())
}

func TestRegsAndFramePrint(t *testing.T) {
	defer kfmt.SetOutputSink(nil)

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	regs := Regs{RAX: 1, RBX: 2, RCX: 3, RDX: 4, RSI: 5, RDI: 6, RBP: 7}
	regs.Print()

	exp := "RAX = 0000000000000001 RBX = 0000000000000002\nRCX = 0000000000000003 RDX = 0000000000000004\nRSI = 0000000000000005 RDI = 0000000000000006\nRBP = 0000000000000007\n"
	assert.Equal(t, exp, buf.String())

	buf.Reset()
	frame := Frame{RIP: 1, RFlags: 3, RSP: 4}
	frame.Print()

	exp = "RIP = 0000000000000001 RSP = 0000000000000004\nRFL = 0000000000000003\n"
	assert.Equal(t, exp, buf.String())
}
