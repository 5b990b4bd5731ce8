// Package memory implements the single shared main memory backing the
// simulator: a byte-addressable store serving aligned word and block
// requests, serialized through an internal request queue with a single
// worker goroutine (spec.md §4.1), equivalent to but replacing the
// original's mutex/condition-variable worker thread and promise/future API.
package memory

import (
	"github.com/example/mesisim/core"
)

// Segment records which PE a range of the address space "belongs" to. It is
// pure inspection bookkeeping (the `mem owner` stepper command) and has no
// bearing on any access path — any PE may address any word regardless of
// segment ownership, matching original_source/shared_memory.h's
// add_segment/owner_segment, which the distilled spec.md dropped.
type Segment struct {
	PEID     int
	BaseWord uint64
	LenWords uint64
}

type request struct {
	run  func() (any, error)
	resp chan result
}

type result struct {
	val any
	err error
}

// Memory is the contiguous byte-addressable main store.
type Memory struct {
	cfg   core.Config
	bytes []byte

	segments []Segment

	queue chan request
	done  chan struct{}

	wordReads, wordWrites   uint64
	blockReads, blockWrites uint64
}

// New creates main memory with room for numWords words under cfg, and
// starts its single worker goroutine.
func New(cfg core.Config, numWords int) *Memory {
	m := &Memory{
		cfg:   cfg,
		bytes: make([]byte, numWords*cfg.WordBytes),
		queue: make(chan request),
		done:  make(chan struct{}),
	}
	go m.worker()
	return m
}

// Close stops the worker goroutine. Safe to call once.
func (m *Memory) Close() { close(m.done) }

func (m *Memory) worker() {
	for {
		select {
		case req := <-m.queue:
			v, err := req.run()
			req.resp <- result{v, err}
		case <-m.done:
			return
		}
	}
}

// submit runs fn on the worker goroutine and blocks for its result, giving
// every memory operation the same atomicity as a single mutex-guarded call
// without needing to expose the lock itself.
func (m *Memory) submit(fn func() (any, error)) (any, error) {
	req := request{run: fn, resp: make(chan result, 1)}
	m.queue <- req
	res := <-req.resp
	return res.val, res.err
}

// AddSegment records the [baseWord, baseWord+lenWords) range as owned by
// peID for later inspection; see Segment.
func (m *Memory) AddSegment(peID int, baseWord, lenWords uint64) {
	m.segments = append(m.segments, Segment{PEID: peID, BaseWord: baseWord, LenWords: lenWords})
}

// Owner returns the PE ID that owns byteAddr's segment, or -1 if unassigned.
func (m *Memory) Owner(byteAddr uint64) int {
	word := byteAddr / uint64(m.cfg.WordBytes)
	for _, s := range m.segments {
		if word >= s.BaseWord && word < s.BaseWord+s.LenWords {
			return s.PEID
		}
	}
	return -1
}

func (m *Memory) checkAligned(addr uint64, alignment int) error {
	if addr%uint64(alignment) != 0 {
		return &core.AlignmentError{Addr: addr, Alignment: alignment}
	}
	return nil
}

func (m *Memory) checkRange(addr uint64, size int) error {
	if addr+uint64(size) > uint64(len(m.bytes)) {
		return &core.RangeError{Addr: addr, Size: uint64(len(m.bytes))}
	}
	return nil
}

// ReadWord returns the WordBytes-byte value stored at addr.
func (m *Memory) ReadWord(addr uint64) ([]byte, error) {
	if err := m.checkAligned(addr, m.cfg.WordBytes); err != nil {
		return nil, err
	}
	if err := m.checkRange(addr, m.cfg.WordBytes); err != nil {
		return nil, err
	}
	v, err := m.submit(func() (any, error) {
		m.wordReads++
		out := make([]byte, m.cfg.WordBytes)
		copy(out, m.bytes[addr:addr+uint64(m.cfg.WordBytes)])
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// WriteWord stores a WordBytes-byte value at addr.
func (m *Memory) WriteWord(addr uint64, data []byte) error {
	if err := m.checkAligned(addr, m.cfg.WordBytes); err != nil {
		return err
	}
	if err := m.checkRange(addr, m.cfg.WordBytes); err != nil {
		return err
	}
	_, err := m.submit(func() (any, error) {
		m.wordWrites++
		copy(m.bytes[addr:addr+uint64(m.cfg.WordBytes)], data)
		return nil, nil
	})
	return err
}

// ReadBlock returns the BlockBytes-byte block stored at addr.
func (m *Memory) ReadBlock(addr uint64) ([]byte, error) {
	if err := m.checkAligned(addr, m.cfg.BlockBytes); err != nil {
		return nil, err
	}
	if err := m.checkRange(addr, m.cfg.BlockBytes); err != nil {
		return nil, err
	}
	v, err := m.submit(func() (any, error) {
		m.blockReads++
		out := make([]byte, m.cfg.BlockBytes)
		copy(out, m.bytes[addr:addr+uint64(m.cfg.BlockBytes)])
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// WriteBlock stores a BlockBytes-byte block at addr.
func (m *Memory) WriteBlock(addr uint64, data []byte) error {
	if err := m.checkAligned(addr, m.cfg.BlockBytes); err != nil {
		return err
	}
	if err := m.checkRange(addr, m.cfg.BlockBytes); err != nil {
		return err
	}
	_, err := m.submit(func() (any, error) {
		m.blockWrites++
		copy(m.bytes[addr:addr+uint64(m.cfg.BlockBytes)], data)
		return nil, nil
	})
	return err
}

// Stats is a snapshot of main memory's access counters.
type Stats struct {
	WordReads, WordWrites   uint64
	BlockReads, BlockWrites uint64
}

// Stats returns a snapshot of the access counters.
func (m *Memory) Stats() Stats {
	v, _ := m.submit(func() (any, error) {
		return Stats{
			WordReads:   m.wordReads,
			WordWrites:  m.wordWrites,
			BlockReads:  m.blockReads,
			BlockWrites: m.blockWrites,
		}, nil
	})
	return v.(Stats)
}

// Size returns the memory's capacity in bytes.
func (m *Memory) Size() uint64 { return uint64(len(m.bytes)) }
