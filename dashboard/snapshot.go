// Package dashboard serves a live HTTP+WebSocket view of cache and memory
// state (SPEC_FULL.md §9), supplementing spec.md's CLI-only surface the way
// original_source/gui_app.cpp's Qt grid did for the original, but as a
// stateless read-only web view built on the teacher's own web stack
// (web_server.go, web_websocket_hub.go).
package dashboard

import (
	"github.com/example/mesisim/cache"
	"github.com/example/mesisim/core"
	"github.com/example/mesisim/system"
)

// LineSnapshot is the JSON shape of one cache line.
type LineSnapshot struct {
	Set    int            `json:"set"`
	Way    int            `json:"way"`
	State  core.MESIState `json:"state"`
	Tag    uint64         `json:"tag"`
	Recent bool           `json:"recent"`
}

// CacheSnapshot is the JSON shape of one PE's cache: its lines and counters.
type CacheSnapshot struct {
	PEID  int            `json:"pe_id"`
	Lines []LineSnapshot `json:"lines"`
	Stats cache.Stats    `json:"stats"`
}

// CachesSnapshot is the payload of GET /api/caches and every WS push.
type CachesSnapshot struct {
	Caches []CacheSnapshot `json:"caches"`
}

// snapshotCaches walks every cache's sets/ways into a JSON-ready form.
func snapshotCaches(s *system.System) CachesSnapshot {
	out := CachesSnapshot{Caches: make([]CacheSnapshot, 0, len(s.Caches))}
	for _, c := range s.Caches {
		cs := CacheSnapshot{PEID: c.ID(), Stats: c.Stats()}
		for set := 0; set < c.NumSets(); set++ {
			for way := 0; way < c.NumWays(); way++ {
				ln := c.DumpLine(set, way)
				cs.Lines = append(cs.Lines, LineSnapshot{
					Set: set, Way: way,
					State: ln.State, Tag: ln.Tag, Recent: ln.Recent,
				})
			}
		}
		out.Caches = append(out.Caches, cs)
	}
	return out
}

// WordSnapshot is one word of the GET /api/mem response.
type WordSnapshot struct {
	Addr  uint64  `json:"addr"`
	Value float64 `json:"value"`
}

// MemSnapshot is the payload of GET /api/mem.
type MemSnapshot struct {
	Words []WordSnapshot `json:"words"`
}

func snapshotMem(s *system.System, addr uint64, count int) MemSnapshot {
	out := MemSnapshot{Words: make([]WordSnapshot, 0, count)}
	for i := 0; i < count; i++ {
		a := addr + uint64(i)*8
		v, err := s.Memory.LoadDouble(a)
		if err != nil {
			break
		}
		out.Words = append(out.Words, WordSnapshot{Addr: a, Value: v})
	}
	return out
}
