// Package multiboot decodes the multiboot2 boot information blob that the
// boot loader hands to the kernel. Only the tags used by the memory manager
// are interpreted: the boot command line and the memory map.
package multiboot

import (
	"encoding/binary"
	"strings"
)

var (
	infoData  []byte
	cmdLineKV map[string]string
)

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
)

const (
	// infoHeaderSize is the size of the fixed header (total size and a
	// reserved dword) that precedes the first tag.
	infoHeaderSize = 8

	// tagHeaderSize is the size of the type and size dwords at the start
	// of each tag.
	tagHeaderSize = 8

	// mmapHeaderSize is the size of the entry size and entry version
	// dwords that precede the memory map entries.
	mmapHeaderSize = 8

	// mmapEntrySize is the size of a memory map entry as emitted by
	// multiboot2 compliant boot loaders.
	mmapEntrySize = 24
)

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// MemRegionVisitor defies a visitor function that gets invoked by VisitMemRegions
// for each memory region provided by the boot loader. The visitor must return true
// to continue or false to abort the scan.
type MemRegionVisitor func(*MemoryMapEntry) bool

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	default:
		return "unknown"
	}
}

// SetInfo updates the multiboot information blob consulted by this package.
// This function must be invoked before invoking any other function exported
// by this package.
func SetInfo(data []byte) {
	infoData = data
	cmdLineKV = nil
}

// VisitMemRegions will invoke the supplied visitor for each memory region that
// is defined by the multiboot info data that we received from the bootloader.
func VisitMemRegions(visitor MemRegionVisitor) {
	tag := findTagByType(tagMemoryMap)
	if len(tag) < mmapHeaderSize {
		return
	}

	entrySize := int(binary.LittleEndian.Uint32(tag[0:]))
	if entrySize < mmapEntrySize-4 {
		return
	}

	var entry MemoryMapEntry
	for off := mmapHeaderSize; off+entrySize <= len(tag); off += entrySize {
		entry.PhysAddress = binary.LittleEndian.Uint64(tag[off:])
		entry.Length = binary.LittleEndian.Uint64(tag[off+8:])
		entry.Type = MemoryEntryType(binary.LittleEndian.Uint32(tag[off+16:]))

		// Mark unknown entry types as reserved
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(&entry) {
			return
		}
	}
}

// GetBootCmdLine returns the command line key-value pairs passed to the
// kernel. Arguments without a value map to themselves.
func GetBootCmdLine() map[string]string {
	if cmdLineKV != nil {
		return cmdLineKV
	}

	cmdLineKV = make(map[string]string)

	tag := findTagByType(tagBootCmdLine)
	if len(tag) != 0 {
		// The command line is a C-style NULL-terminated string
		cmdLine := string(tag)
		if idx := strings.IndexByte(cmdLine, 0); idx >= 0 {
			cmdLine = cmdLine[:idx]
		}

		for _, pair := range strings.Fields(cmdLine) {
			kv := strings.Split(pair, "=")
			switch len(kv) {
			case 2: // foo=bar
				cmdLineKV[kv[0]] = kv[1]
			case 1: // nofoo
				cmdLineKV[kv[0]] = kv[0]
			}
		}
	}

	return cmdLineKV
}

// findTagByType scans the multiboot info data looking for the first tag of
// the specified type and returns its contents excluding the tag header. If
// the tag is not present, or the info blob is truncated, findTagByType
// returns nil.
func findTagByType(wanted tagType) []byte {
	if len(infoData) < infoHeaderSize {
		return nil
	}

	end := int(binary.LittleEndian.Uint32(infoData))
	if end > len(infoData) {
		end = len(infoData)
	}

	for off := infoHeaderSize; off+tagHeaderSize <= end; {
		curType := tagType(binary.LittleEndian.Uint32(infoData[off:]))
		size := int(binary.LittleEndian.Uint32(infoData[off+4:]))
		if curType == tagMbSectionEnd || size < tagHeaderSize || off+size > end {
			return nil
		}

		if curType == wanted {
			return infoData[off+tagHeaderSize : off+size]
		}

		// Tags are aligned at 8-byte aligned addresses
		off += (size + 7) &^ 7
	}

	return nil
}
