package loader

import "intuitionengine/guest"

// ApplyRelocations patches every HIGHLOW base relocation in image for the
// delta between the image's preferred base and the actual load address,
// image must already be laid out at RVA offsets (as
// returned by View.RawImage).
func ApplyRelocations(mem *guest.Memory, loadBase uint32, preferredBase uint32, blocks []RelocBlock) error {
	delta := loadBase - preferredBase
	if delta == 0 {
		return nil
	}
	for _, block := range blocks {
		for _, rva := range block.RVAs {
			addr := loadBase + rva
			v, err := mem.ReadU32(addr)
			if err != nil {
				return err
			}
			if err := mem.WriteU32(addr, v+delta); err != nil {
				return err
			}
		}
	}
	return nil
}
