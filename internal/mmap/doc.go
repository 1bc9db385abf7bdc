// Package mmap maps archive batch files read-only into memory.
//
//	m, err := mmap.Open("2020/batch-0001.vta")
//	if err != nil { ... }
//	defer m.Close()
//
//	_ = m.Advise(mmap.AccessRandom)
//	n, err := m.ReadAt(buf, off)
//
// Unix platforms use mmap(2) and madvise(2). Other platforms read the whole
// file into a heap buffer; the API is identical.
package mmap
