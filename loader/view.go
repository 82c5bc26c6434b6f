// Package loader is the PE container glue the engine consumes through a
// narrow structured interface: the engine itself never
// parses PE headers, it is handed image bytes with relocations applied,
// optional-header fields, sections, exports, imports, resources, and the
// delay-import directory.
//
// (c) 2024 - 2026 Zayn Otley
// https://github.com/IntuitionAmiga/IntuitionEngine
// License: GPLv3 or later
package loader

// Section mirrors one IMAGE_SECTION_HEADER entry.
type Section struct {
	Name            string
	RVA             uint32
	RawSize         uint32
	VirtualSize     uint32
	Characteristics uint32
}

// Export describes one export-table entry; Forwarder is non-empty when
// the export is a forwarder string ("OTHERDLL.FuncName").
type Export struct {
	Ordinal   uint16
	RVA       uint32
	Name      string
	Forwarder string
}

// ImportRef describes one import descriptor entry: either a named or
// ordinal import, plus the RVA of its IAT slot.
type ImportRef struct {
	DLL        string
	Name       string
	Ordinal    uint16
	ByOrdinal  bool
	IATSlotRVA uint32
}

// RelocBlock is one IMAGE_BASE_RELOCATION block's entries, flattened to
// absolute RVAs needing a HIGHLOW (type 3) fixup.
type RelocBlock struct {
	RVAs []uint32
}

// TLSInfo mirrors the fields of IMAGE_TLS_DIRECTORY32 this engine needs.
type TLSInfo struct {
	StartAddressOfRawData uint32
	EndAddressOfRawData   uint32
	AddressOfIndex        uint32
	CallbacksRVA           []uint32
}

// DelayImportRef describes one delay-load import descriptor entry.
type DelayImportRef struct {
	DLL        string
	Name       string
	Ordinal    uint16
	ByOrdinal  bool
	IATSlotRVA uint32
}

// Resource is a leaf resource-directory entry's raw bytes, keyed by
// (type, name, lang), read directly out of the PE resource directory.
type Resource struct {
	Type, Name, Lang uint32
	Data             []byte
}

// View is the structured interface the engine consumes; it never touches
// PE headers itself.
type View interface {
	ImageBase() uint32
	EntryPointRVA() uint32
	ImageSize() uint32
	RawImage() []byte // the laid-out image bytes, pre-relocation
	Sections() []Section
	Exports() []Export
	Imports() []ImportRef
	DelayImports() []DelayImportRef
	Relocations() []RelocBlock
	TLS() (TLSInfo, bool)
	Resources() []Resource
}
