package vmm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yawqi/blog-os-yawqi/kernel/cpu"
	"github.com/yawqi/blog-os-yawqi/kernel/irq"
	"github.com/yawqi/blog-os-yawqi/kernel/kfmt"
	"github.com/yawqi/blog-os-yawqi/kernel/mm"
)

func TestInit(t *testing.T) {
	defer func() {
		handleExceptionWithCodeFn = irq.HandleExceptionWithCode
		kfmt.SetOutputSink(nil)
	}()

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	t.Run("success", func(t *testing.T) {
		m := newTestMachine(t, 8)

		var installed []irq.ExceptionNum
		handleExceptionWithCodeFn = func(num irq.ExceptionNum, _ irq.ExceptionHandlerWithCode) {
			installed = append(installed, num)
		}

		as, err := Init(m.mem, PhysicalMemoryOffset)
		require.Nil(t, err)
		require.NotNil(t, as)
		assert.Equal(t, []irq.ExceptionNum{irq.PageFaultException, irq.GPFException}, installed)
		assert.Contains(t, buf.String(), "[vmm] page directory at 0x0")
	})

	t.Run("active PDT outside physical memory", func(t *testing.T) {
		m := newTestMachine(t, 8)
		cpu.SwitchPDT(mm.Frame(8).Address())

		_, err := Init(m.mem, PhysicalMemoryOffset)
		assert.Equal(t, errNoActivePDT, err)
	})
}
