package multiboot

import "encoding/binary"

// Builder assembles a multiboot2 information blob. It plays the part of the
// boot loader when the kernel is started on the simulated machine.
type Builder struct {
	cmdLine string
	regions []MemoryMapEntry
}

// SetCmdLine sets the contents of the boot command line tag.
func (b *Builder) SetCmdLine(cmdLine string) *Builder {
	b.cmdLine = cmdLine
	return b
}

// AddMemRegion appends an entry to the memory map tag.
func (b *Builder) AddMemRegion(physAddr, length uint64, memType MemoryEntryType) *Builder {
	b.regions = append(b.regions, MemoryMapEntry{PhysAddress: physAddr, Length: length, Type: memType})
	return b
}

// Build returns the encoded information blob.
func (b *Builder) Build() []byte {
	out := make([]byte, infoHeaderSize)

	if b.cmdLine != "" {
		payload := append([]byte(b.cmdLine), 0)
		out = appendTag(out, tagBootCmdLine, payload)
	}

	if len(b.regions) != 0 {
		payload := make([]byte, mmapHeaderSize+len(b.regions)*mmapEntrySize)
		binary.LittleEndian.PutUint32(payload[0:], mmapEntrySize)
		for i, r := range b.regions {
			entry := payload[mmapHeaderSize+i*mmapEntrySize:]
			binary.LittleEndian.PutUint64(entry[0:], r.PhysAddress)
			binary.LittleEndian.PutUint64(entry[8:], r.Length)
			binary.LittleEndian.PutUint32(entry[16:], uint32(r.Type))
		}
		out = appendTag(out, tagMemoryMap, payload)
	}

	out = appendTag(out, tagMbSectionEnd, nil)
	binary.LittleEndian.PutUint32(out[0:], uint32(len(out)))
	return out
}

func appendTag(out []byte, t tagType, payload []byte) []byte {
	var hdr [tagHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(t))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(tagHeaderSize+len(payload)))

	out = append(out, hdr[:]...)
	out = append(out, payload...)
	for len(out)%8 != 0 {
		out = append(out, 0)
	}
	return out
}
