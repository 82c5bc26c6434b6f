package kernel32

import (
	"golang.org/x/sys/unix"

	"intuitionengine/cpu"
)

// mapping is one CreateFileMapping handle's host-side state: the mmap'd
// bytes that MapViewOfFile copies from. It is never unmapped;
// UnmapViewOfFile frees only the guest copy.
type mapping struct {
	data []byte
}

var (
	mappedViews  = make(map[uint32]*mapping)
	nextViewAddr uint32 = 0x60000000 // disjoint from the thunk region and any loaded image
)

// createFileMappingA/mapViewOfFile/unmapViewOfFile are registered from
// Load() in kernel32.go. golang.org/x/sys backs the mmap side of a
// file-mapped view: a sandboxed file is mmap'd on the host via unix.Mmap
// under a synthetic mapping handle, and MapViewOfFile copies its bytes
// into a fresh guest heap block, since this engine's guest memory is a
// single contiguous Go
// slice rather than real mapped pages the guest can fault into directly.
func (m *Module) createFileMappingA(c *cpu.CPU) (uint32, error) {
	hFile, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	sizeLow, err := argAt(c, 4)
	if err != nil {
		return 0, err
	}

	fh, ok := openFiles[hFile]
	if !ok || fh.f == nil {
		m.setErr(6)
		return 0, nil
	}

	fd := int(fh.f.Fd())
	data, merr := unix.Mmap(fd, 0, int(sizeLow), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if merr != nil {
		m.setErr(5)
		return 0, nil
	}

	handle := nextViewAddr
	nextViewAddr += 0x1000
	mappedViews[handle] = &mapping{data: data}
	return handle, nil
}

func (m *Module) mapViewOfFile(c *cpu.CPU) (uint32, error) {
	hMapping, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	mp, ok := mappedViews[hMapping]
	if !ok {
		m.setErr(6)
		return 0, nil
	}

	addr, aerr := c.Mem.HeapAlloc(uint32(len(mp.data)), 0x1000)
	if aerr != nil {
		m.setErr(8)
		return 0, nil
	}
	if err := c.Mem.WriteBytes(addr, mp.data); err != nil {
		return 0, err
	}
	return addr, nil
}

func (m *Module) unmapViewOfFile(c *cpu.CPU) (uint32, error) {
	addr, err := argAt(c, 0)
	if err != nil {
		return 0, err
	}
	c.Mem.HeapFree(addr)
	return 1, nil
}
