package checkpoint

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/myrjola/novella/internal/errors"
	"sort"
)

// NodeRecord is one visit of a node. VisitCount is 1 for the first visit of NodeName, 2 for the second and so on.
type NodeRecord struct {
	NodeName   string
	VisitCount int
}

// NodeHistory is the path walked so far.
//
// Interrupts record the variables hash whenever variables were changed outside of dialogue actions, keyed by
// history index and dialogue index.
type NodeHistory struct {
	records    []NodeRecord
	counts     map[string]int
	interrupts map[int]map[int]uint64
}

// NewNodeHistory creates an empty history.
func NewNodeHistory(nodeNames ...string) *NodeHistory {
	h := &NodeHistory{
		counts:     make(map[string]int),
		interrupts: make(map[int]map[int]uint64),
	}
	for _, name := range nodeNames {
		h.Add(name)
	}
	return h
}

// Add appends a visit of nodeName.
func (h *NodeHistory) Add(nodeName string) {
	h.counts[nodeName]++
	h.records = append(h.records, NodeRecord{NodeName: nodeName, VisitCount: h.counts[nodeName]})
}

// Len returns the number of visits.
func (h *NodeHistory) Len() int {
	return len(h.records)
}

// At returns the visit at index i.
func (h *NodeHistory) At(i int) NodeRecord {
	return h.records[i]
}

// Last returns the most recent visit.
func (h *NodeHistory) Last() (NodeRecord, bool) {
	if len(h.records) == 0 {
		return NodeRecord{}, false
	}
	return h.records[len(h.records)-1], true
}

// Names returns the visited node names in order.
func (h *NodeHistory) Names() []string {
	names := make([]string, len(h.records))
	for i, r := range h.records {
		names[i] = r.NodeName
	}
	return names
}

// LastIndexOf returns the index of the most recent visit of nodeName or -1.
func (h *NodeHistory) LastIndexOf(nodeName string) int {
	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].NodeName == nodeName {
			return i
		}
	}
	return -1
}

// Truncate keeps the first n visits and the interrupts recorded for them.
func (h *NodeHistory) Truncate(n int) {
	if n >= len(h.records) {
		return
	}
	if n < 0 {
		n = 0
	}
	for _, r := range h.records[n:] {
		h.counts[r.NodeName]--
		if h.counts[r.NodeName] == 0 {
			delete(h.counts, r.NodeName)
		}
	}
	h.records = h.records[:n]
	for idx := range h.interrupts {
		if idx >= n {
			delete(h.interrupts, idx)
		}
	}
}

// Clear removes every visit and interrupt.
func (h *NodeHistory) Clear() {
	h.Truncate(0)
}

// AddInterrupt records variablesHash at dialogueIndex of the most recent visit.
func (h *NodeHistory) AddInterrupt(dialogueIndex int, variablesHash uint64) {
	if len(h.records) == 0 {
		return
	}
	idx := len(h.records) - 1
	if h.interrupts[idx] == nil {
		h.interrupts[idx] = make(map[int]uint64)
	}
	h.interrupts[idx][dialogueIndex] = variablesHash
}

// TruncateInterrupts removes the interrupts of the most recent visit at or after dialogueIndex. The reached record of
// a dialogue holds the variables from before any interrupt at that dialogue.
func (h *NodeHistory) TruncateInterrupts(dialogueIndex int) {
	idx := len(h.records) - 1
	m := h.interrupts[idx]
	for i := range m {
		if i >= dialogueIndex {
			delete(m, i)
		}
	}
	if len(m) == 0 {
		delete(h.interrupts, idx)
	}
}

// Interrupt returns the variables hash recorded at dialogueIndex of the visit at history index idx.
func (h *NodeHistory) Interrupt(idx, dialogueIndex int) (uint64, bool) {
	hash, ok := h.interrupts[idx][dialogueIndex]
	return hash, ok
}

// Interrupts returns the interrupts of the visit at history index idx.
func (h *NodeHistory) Interrupts(idx int) map[int]uint64 {
	src := h.interrupts[idx]
	if len(src) == 0 {
		return nil
	}
	dst := make(map[int]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// InterruptCount returns the number of interrupts across all visits.
func (h *NodeHistory) InterruptCount() int {
	n := 0
	for _, m := range h.interrupts {
		n += len(m)
	}
	return n
}

// Clone returns a deep copy.
func (h *NodeHistory) Clone() *NodeHistory {
	c := NewNodeHistory(h.Names()...)
	for idx, m := range h.interrupts {
		c.interrupts[idx] = make(map[int]uint64, len(m))
		for k, v := range m {
			c.interrupts[idx][k] = v
		}
	}
	return c
}

type interruptWire struct {
	_             struct{} `cbor:",toarray"`
	HistoryIndex  int
	DialogueIndex int
	VariablesHash uint64
}

type nodeHistoryWire struct {
	NodeNames  []string        `cbor:"1,keyasint"`
	Interrupts []interruptWire `cbor:"2,keyasint,omitempty"`
}

// MarshalCBOR stores node names and interrupts. Visit counts are derived when decoding.
func (h *NodeHistory) MarshalCBOR() ([]byte, error) {
	w := nodeHistoryWire{NodeNames: h.Names()}
	for idx, m := range h.interrupts {
		for dialogueIndex, hash := range m {
			w.Interrupts = append(w.Interrupts, interruptWire{
				HistoryIndex:  idx,
				DialogueIndex: dialogueIndex,
				VariablesHash: hash,
			})
		}
	}
	sort.Slice(w.Interrupts, func(i, j int) bool {
		a, b := w.Interrupts[i], w.Interrupts[j]
		if a.HistoryIndex != b.HistoryIndex {
			return a.HistoryIndex < b.HistoryIndex
		}
		return a.DialogueIndex < b.DialogueIndex
	})
	data, err := cbor.Marshal(w)
	if err != nil {
		return nil, errors.Wrap(err, "marshal node history")
	}
	return data, nil
}

// UnmarshalCBOR decodes data written by MarshalCBOR.
func (h *NodeHistory) UnmarshalCBOR(data []byte) error {
	var w nodeHistoryWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return errors.Wrap(err, "unmarshal node history")
	}
	*h = *NewNodeHistory(w.NodeNames...)
	for _, i := range w.Interrupts {
		if i.HistoryIndex < 0 || i.HistoryIndex >= len(h.records) {
			continue
		}
		if h.interrupts[i.HistoryIndex] == nil {
			h.interrupts[i.HistoryIndex] = make(map[int]uint64)
		}
		h.interrupts[i.HistoryIndex][i.DialogueIndex] = i.VariablesHash
	}
	return nil
}
