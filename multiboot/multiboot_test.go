package multiboot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitMemRegions(t *testing.T) {
	defer SetInfo(nil)

	SetInfo(new(Builder).
		AddMemRegion(0, 0x9fc00, MemAvailable).
		AddMemRegion(0x9fc00, 0x400, MemReserved).
		AddMemRegion(0x100000, 0x7ee0000, MemAvailable).
		AddMemRegion(0x7fe0000, 0x20000, MemAcpiReclaimable).
		AddMemRegion(0xfffc0000, 0x40000, MemoryEntryType(42)).
		Build(),
	)

	exp := []MemoryMapEntry{
		{0, 0x9fc00, MemAvailable},
		{0x9fc00, 0x400, MemReserved},
		{0x100000, 0x7ee0000, MemAvailable},
		{0x7fe0000, 0x20000, MemAcpiReclaimable},
		// unknown types are reported as reserved
		{0xfffc0000, 0x40000, MemReserved},
	}

	var got []MemoryMapEntry
	VisitMemRegions(func(e *MemoryMapEntry) bool {
		got = append(got, *e)
		return true
	})
	require.Equal(t, exp, got)

	t.Run("visitor aborts scan", func(t *testing.T) {
		var visited int
		VisitMemRegions(func(_ *MemoryMapEntry) bool {
			visited++
			return false
		})
		assert.Equal(t, 1, visited)
	})
}

func TestVisitMemRegionsWithoutMap(t *testing.T) {
	defer SetInfo(nil)

	specs := [][]byte{
		nil,
		{1, 2, 3},
		new(Builder).SetCmdLine("foo").Build(),
	}

	for specIndex, spec := range specs {
		SetInfo(spec)
		VisitMemRegions(func(_ *MemoryMapEntry) bool {
			t.Errorf("[spec %d] visitor should not be invoked", specIndex)
			return true
		})
	}
}

func TestTruncatedInfo(t *testing.T) {
	defer SetInfo(nil)

	data := new(Builder).AddMemRegion(0, 0x1000, MemAvailable).Build()
	SetInfo(data[:20])

	VisitMemRegions(func(_ *MemoryMapEntry) bool {
		t.Error("visitor should not be invoked for a truncated tag")
		return true
	})
}

func TestGetBootCmdLine(t *testing.T) {
	defer SetInfo(nil)

	SetInfo(new(Builder).SetCmdLine("heap_start=0x444444440000 heap_size=102400 noapic").Build())

	exp := map[string]string{
		"heap_start": "0x444444440000",
		"heap_size":  "102400",
		"noapic":     "noapic",
	}
	assert.Equal(t, exp, GetBootCmdLine())

	// Results are cached until SetInfo is invoked again
	SetInfo(nil)
	assert.Empty(t, GetBootCmdLine())
}

func TestMemoryEntryTypeString(t *testing.T) {
	specs := []struct {
		input MemoryEntryType
		exp   string
	}{
		{MemAvailable, "available"},
		{MemReserved, "reserved"},
		{MemAcpiReclaimable, "ACPI (reclaimable)"},
		{MemNvs, "NVS"},
		{MemoryEntryType(123), "unknown"},
	}

	for specIndex, spec := range specs {
		assert.Equal(t, spec.exp, spec.input.String(), "[spec %d]", specIndex)
	}
}
