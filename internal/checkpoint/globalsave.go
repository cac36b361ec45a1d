package checkpoint

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/myrjola/novella/internal/errors"
	"log/slog"
	"sort"
)

// NodeSaveInfo is what has been reached in one node under one variables hash.
type NodeSaveInfo struct {
	DialogueEntries map[int]RestoreEntry
	ReachedBranches map[string]struct{}
}

func newNodeSaveInfo() *NodeSaveInfo {
	return &NodeSaveInfo{
		DialogueEntries: make(map[int]RestoreEntry),
		ReachedBranches: make(map[string]struct{}),
	}
}

// GlobalSave is the progress shared by every playthrough.
type GlobalSave struct {
	// Identifier changes whenever the global save is reset. Bookmarks made for another identifier are incompatible.
	Identifier string
	// Reached maps variables hash to node name to what was reached there.
	Reached     map[uint64]map[string]*NodeSaveInfo
	ReachedEnds map[string]struct{}
	// Flags hold CBOR encoded auxiliary values such as unlocked galleries.
	Flags map[string]cbor.RawMessage
}

// NewGlobalSave creates an empty global save with a fresh identifier.
func NewGlobalSave() *GlobalSave {
	return &GlobalSave{
		Identifier:  uuid.NewString(),
		Reached:     make(map[uint64]map[string]*NodeSaveInfo),
		ReachedEnds: make(map[string]struct{}),
		Flags:       make(map[string]cbor.RawMessage),
	}
}

func (g *GlobalSave) nodeInfo(variablesHash uint64, nodeName string, create bool) *NodeSaveInfo {
	nodes, ok := g.Reached[variablesHash]
	if !ok {
		if !create {
			return nil
		}
		nodes = make(map[string]*NodeSaveInfo)
		g.Reached[variablesHash] = nodes
	}
	info, ok := nodes[nodeName]
	if !ok && create {
		info = newNodeSaveInfo()
		nodes[nodeName] = info
	}
	return info
}

// sortedHashes returns the variables hashes in ascending order for deterministic lookups.
func (g *GlobalSave) sortedHashes() []uint64 {
	hashes := make([]uint64, 0, len(g.Reached))
	for h := range g.Reached {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	return hashes
}

type nodeSaveInfoWire struct {
	DialogueEntries map[int]restoreEntryWire `cbor:"1,keyasint,omitempty"`
	ReachedBranches []string                 `cbor:"2,keyasint,omitempty"`
}

type globalSaveWire struct {
	Identifier  string                                 `cbor:"1,keyasint"`
	Reached     map[uint64]map[string]nodeSaveInfoWire `cbor:"2,keyasint,omitempty"`
	ReachedEnds []string                               `cbor:"3,keyasint,omitempty"`
	Flags       map[string]cbor.RawMessage             `cbor:"4,keyasint,omitempty"`
}

func sortedSet(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	s := make([]string, 0, len(set))
	for k := range set {
		s = append(s, k)
	}
	sort.Strings(s)
	return s
}

func toSet(s []string) map[string]struct{} {
	set := make(map[string]struct{}, len(s))
	for _, k := range s {
		set[k] = struct{}{}
	}
	return set
}

// MarshalCBOR encodes the global save.
func (g *GlobalSave) MarshalCBOR() ([]byte, error) {
	w := globalSaveWire{
		Identifier:  g.Identifier,
		Reached:     make(map[uint64]map[string]nodeSaveInfoWire, len(g.Reached)),
		ReachedEnds: sortedSet(g.ReachedEnds),
		Flags:       g.Flags,
	}
	for hash, nodes := range g.Reached {
		wireNodes := make(map[string]nodeSaveInfoWire, len(nodes))
		for name, info := range nodes {
			wireInfo := nodeSaveInfoWire{
				DialogueEntries: make(map[int]restoreEntryWire, len(info.DialogueEntries)),
				ReachedBranches: sortedSet(info.ReachedBranches),
			}
			for idx, entry := range info.DialogueEntries {
				we, err := toEntryWire(entry)
				if err != nil {
					return nil, errors.Wrap(err, "encode restore entry",
						slog.String("node", name), slog.Int("dialogueIndex", idx))
				}
				wireInfo.DialogueEntries[idx] = we
			}
			wireNodes[name] = wireInfo
		}
		w.Reached[hash] = wireNodes
	}
	data, err := cbor.Marshal(w)
	if err != nil {
		return nil, errors.Wrap(err, "marshal global save")
	}
	return data, nil
}

// UnmarshalCBOR decodes data written by MarshalCBOR.
func (g *GlobalSave) UnmarshalCBOR(data []byte) error {
	var w globalSaveWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return errors.Wrap(err, "unmarshal global save")
	}
	if w.Identifier == "" {
		return errors.Wrap(ErrGlobalSaveCorrupted, "global save has no identifier")
	}
	decoded := &GlobalSave{
		Identifier:  w.Identifier,
		Reached:     make(map[uint64]map[string]*NodeSaveInfo, len(w.Reached)),
		ReachedEnds: toSet(w.ReachedEnds),
		Flags:       w.Flags,
	}
	if decoded.Flags == nil {
		decoded.Flags = make(map[string]cbor.RawMessage)
	}
	for hash, wireNodes := range w.Reached {
		nodes := make(map[string]*NodeSaveInfo, len(wireNodes))
		for name, wireInfo := range wireNodes {
			info := &NodeSaveInfo{
				DialogueEntries: make(map[int]RestoreEntry, len(wireInfo.DialogueEntries)),
				ReachedBranches: toSet(wireInfo.ReachedBranches),
			}
			for idx, we := range wireInfo.DialogueEntries {
				entry, err := fromEntryWire(we)
				if err != nil {
					return errors.Wrap(err, "decode restore entry",
						slog.String("node", name), slog.Int("dialogueIndex", idx))
				}
				info.DialogueEntries[idx] = entry
			}
			nodes[name] = info
		}
		decoded.Reached[hash] = nodes
	}
	*g = *decoded
	return nil
}
