package memory

import "github.com/example/mesisim/core"

// LoadDouble reads the double stored at the word-aligned byte address addr.
// It is a thin convenience wrapper over ReadWord for workload setup,
// inspection (`mem` stepper command), and tests; the coherence engine
// itself never calls it — caches go through ReadBlock/WriteBlock.
func (m *Memory) LoadDouble(addr uint64) (float64, error) {
	b, err := m.ReadWord(addr)
	if err != nil {
		return 0, err
	}
	return core.DecodeDouble(b), nil
}

// StoreDouble writes v as a double at the word-aligned byte address addr.
func (m *Memory) StoreDouble(addr uint64, v float64) error {
	return m.WriteWord(addr, core.EncodeDouble(v))
}
