package loader

import (
	"fmt"

	"github.com/saferwall/pe"
)

// peView adapts a parsed github.com/saferwall/pe.File to the engine's
// narrow View interface, so cpu/hostcall/engine never import the parser
// directly — this is the sole file in the module naming github.com/
// saferwall/pe.
type peView struct {
	file *pe.File
}

// ParseView parses a PE image and returns the structured View the engine
// consumes. The raw section bytes are laid out into a single contiguous
// buffer at their RVAs (so RawImage()[rva] is byte-addressable directly),
// matching the image's preferred base.
func ParseView(data []byte) (View, error) {
	f, err := pe.NewBytes(data, &pe.Options{})
	if err != nil {
		return nil, fmt.Errorf("pe.NewBytes: %w", err)
	}
	if err := f.Parse(); err != nil {
		return nil, fmt.Errorf("pe.Parse: %w", err)
	}
	return &peView{file: f}, nil
}

func (v *peView) ImageBase() uint32 {
	switch oh := v.file.NtHeader.OptionalHeader.(type) {
	case pe.ImageOptionalHeader32:
		return oh.ImageBase
	case pe.ImageOptionalHeader64:
		return uint32(oh.ImageBase)
	}
	return 0x10000000
}

func (v *peView) EntryPointRVA() uint32 {
	switch oh := v.file.NtHeader.OptionalHeader.(type) {
	case pe.ImageOptionalHeader32:
		return oh.AddressOfEntryPoint
	case pe.ImageOptionalHeader64:
		return oh.AddressOfEntryPoint
	}
	return 0
}

func (v *peView) ImageSize() uint32 {
	switch oh := v.file.NtHeader.OptionalHeader.(type) {
	case pe.ImageOptionalHeader32:
		return oh.SizeOfImage
	case pe.ImageOptionalHeader64:
		return oh.SizeOfImage
	}
	return uint32(len(v.file.Data))
}

// RawImage lays sections out at their virtual RVAs over a zeroed buffer
// sized to ImageSize — the "image bytes" view §4.4 names, before this
// engine's own loader.ApplyRelocations patches it for the actual base.
func (v *peView) RawImage() []byte {
	buf := make([]byte, v.ImageSize())
	for _, s := range v.Sections() {
		raw := v.sectionRawBytes(s)
		end := s.RVA + uint32(len(raw))
		if end > uint32(len(buf)) {
			end = uint32(len(buf))
			raw = raw[:end-s.RVA]
		}
		copy(buf[s.RVA:end], raw)
	}
	return buf
}

func (v *peView) sectionRawBytes(s Section) []byte {
	data := v.file.Data
	start := -1
	for _, fs := range v.file.Sections {
		if fs.Header.VirtualAddress == s.RVA {
			start = int(fs.Header.PointerToRawData)
			break
		}
	}
	if start < 0 || start > len(data) {
		return nil
	}
	end := start + int(s.RawSize)
	if end > len(data) {
		end = len(data)
	}
	if end < start {
		return nil
	}
	return data[start:end]
}

func (v *peView) Sections() []Section {
	out := make([]Section, 0, len(v.file.Sections))
	for _, s := range v.file.Sections {
		out = append(out, Section{
			Name:            s.NameString(),
			RVA:             s.Header.VirtualAddress,
			RawSize:         s.Header.SizeOfRawData,
			VirtualSize:     s.Header.VirtualSize,
			Characteristics: s.Header.Characteristics,
		})
	}
	return out
}

func (v *peView) Exports() []Export {
	out := make([]Export, 0)
	for _, fn := range v.file.Export.Functions {
		out = append(out, Export{
			Ordinal:   uint16(fn.Ordinal),
			RVA:       fn.FunctionRVA,
			Name:      fn.Name,
			Forwarder: fn.ForwarderName,
		})
	}
	return out
}

func (v *peView) Imports() []ImportRef {
	out := make([]ImportRef, 0)
	for _, imp := range v.file.Imports {
		for _, fn := range imp.Functions {
			out = append(out, ImportRef{
				DLL:        imp.Name,
				Name:       fn.Name,
				Ordinal:    uint16(fn.Ordinal),
				ByOrdinal:  fn.Name == "",
				IATSlotRVA: fn.ThunkRVA,
			})
		}
	}
	return out
}

func (v *peView) DelayImports() []DelayImportRef {
	out := make([]DelayImportRef, 0)
	for _, imp := range v.file.DelayImports {
		for _, fn := range imp.Functions {
			out = append(out, DelayImportRef{
				DLL:        imp.Name,
				Name:       fn.Name,
				Ordinal:    uint16(fn.Ordinal),
				ByOrdinal:  fn.Name == "",
				IATSlotRVA: fn.ThunkRVA,
			})
		}
	}
	return out
}

func (v *peView) Relocations() []RelocBlock {
	out := make([]RelocBlock, 0, len(v.file.Relocations))
	for _, block := range v.file.Relocations {
		var rvas []uint32
		for _, e := range block.Entries {
			if e.Type == 3 { // IMAGE_REL_BASED_HIGHLOW
				rvas = append(rvas, block.Data.VirtualAddress+uint32(e.Offset))
			}
		}
		if len(rvas) > 0 {
			out = append(out, RelocBlock{RVAs: rvas})
		}
	}
	return out
}

func (v *peView) TLS() (TLSInfo, bool) {
	if v.file.TLS == nil {
		return TLSInfo{}, false
	}
	t := v.file.TLS.Struct32
	return TLSInfo{
		StartAddressOfRawData: t.StartAddressOfRawData,
		EndAddressOfRawData:   t.EndAddressOfRawData,
		AddressOfIndex:        t.AddressOfIndex,
		CallbacksRVA:          v.file.TLS.Callbacks,
	}, true
}

func (v *peView) Resources() []Resource {
	out := make([]Resource, 0)
	for _, r := range v.file.Resources {
		out = append(out, Resource{
			Type: r.Type,
			Name: r.Name,
			Lang: r.Lang,
			Data: r.Data,
		})
	}
	return out
}
