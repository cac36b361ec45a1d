package checkpoint

import (
	"context"
	"github.com/fxamacker/cbor/v2"
	"github.com/golang/groupcache/lru"
	"github.com/myrjola/novella/internal/errors"
	"github.com/myrjola/novella/internal/logging"
	"github.com/myrjola/novella/internal/savefile"
	"io"
	"log/slog"
	"sort"
	"time"
)

var (
	ErrGlobalSaveCorrupted  = errors.NewSentinel("global save is corrupted")
	ErrIncompatibleBookmark = errors.NewSentinel("bookmark is incompatible with the global save")
	ErrBookmarkNotFound     = errors.NewSentinel("bookmark not found")
	ErrNotLoaded            = errors.NewSentinel("global save is not loaded")
)

// Alerter surfaces failures to the player.
type Alerter interface {
	Alert(ctx context.Context, title string, err error)
}

// LogAlerter logs alerts. It is used when the host has no way to show them.
type LogAlerter struct {
	Logger *slog.Logger
}

func (a LogAlerter) Alert(ctx context.Context, title string, err error) {
	a.Logger.LogAttrs(ctx, slog.LevelError, title, errors.SlogError(err))
}

// SaveIDQueryType selects the slot returned by QuerySaveIDByTime.
type SaveIDQueryType int

const (
	SaveIDQueryLatest SaveIDQueryType = iota
	SaveIDQueryEarliest
)

// DefaultBookmarkCacheSize bounds the number of bookmarks kept in memory.
const DefaultBookmarkCacheSize = 32

// Manager owns the global save and the bookmarks. It is not safe for concurrent use.
type Manager struct {
	logger  *slog.Logger
	storage savefile.Storage
	alerter Alerter

	global *GlobalSave
	// saveSlots maps save IDs of stored bookmarks to their modification time.
	saveSlots map[int]time.Time
	cache     *lru.Cache
	// saveFailed suppresses repeated alerts until the next successful write.
	saveFailed bool
}

// NewManager creates a manager. Load must be called before anything else: the reached-record and flag methods panic
// with ErrNotLoaded until then, the others return it.
func NewManager(logger *slog.Logger, storage savefile.Storage, alerter Alerter, cacheSize int) *Manager {
	if cacheSize <= 0 {
		cacheSize = DefaultBookmarkCacheSize
	}
	return &Manager{
		logger:    logger.With("source", "CheckpointManager"),
		storage:   storage,
		alerter:   alerter,
		saveSlots: make(map[int]time.Time),
		cache:     lru.New(cacheSize),
	}
}

// Load reads the global save and scans the stored bookmarks.
//
// A missing global save is created. An unreadable one is reported with ErrGlobalSaveCorrupted and the caller decides
// between ResetGlobalSave and giving up.
func (m *Manager) Load(ctx context.Context) error {
	global := &GlobalSave{}
	err := m.storage.Read(ctx, savefile.GlobalSaveName, func(r io.Reader) error {
		return savefile.Decode(r, global)
	})
	switch {
	case errors.Is(err, savefile.ErrNotFound):
		m.logger.LogAttrs(ctx, slog.LevelInfo, "no global save found, creating one")
		if err = m.ResetGlobalSave(ctx); err != nil {
			return err
		}
	case err != nil:
		return errors.Wrap(errors.Join(ErrGlobalSaveCorrupted, err), "load global save")
	default:
		m.global = global
	}

	return m.scanSaveSlots(ctx)
}

func (m *Manager) scanSaveSlots(ctx context.Context) error {
	infos, err := m.storage.List(ctx)
	if err != nil {
		return errors.Wrap(err, "scan save slots")
	}
	m.saveSlots = make(map[int]time.Time, len(infos))
	for _, info := range infos {
		if saveID, ok := savefile.ParseBookmarkName(info.Name); ok {
			m.saveSlots[saveID] = info.ModTime
		}
	}
	m.logger.LogAttrs(ctx, slog.LevelDebug, "scanned save slots", slog.Int("count", len(m.saveSlots)))
	return nil
}

// ResetGlobalSave discards all progress and assigns a new identifier, which makes every existing bookmark
// incompatible.
func (m *Manager) ResetGlobalSave(ctx context.Context) error {
	m.global = NewGlobalSave()
	m.cache.Clear()
	m.logger.LogAttrs(ctx, slog.LevelInfo, "global save reset", slog.String("identifier", m.global.Identifier))
	return m.UpdateGlobalSave(ctx)
}

// UpdateGlobalSave writes the global save.
func (m *Manager) UpdateGlobalSave(ctx context.Context) error {
	if m.global == nil {
		return ErrNotLoaded
	}
	err := m.storage.Write(ctx, savefile.GlobalSaveName, func(w io.Writer) error {
		return savefile.Encode(w, m.global)
	})
	return m.reportWrite(ctx, errors.Wrap(err, "write global save"))
}

func (m *Manager) reportWrite(ctx context.Context, err error) error {
	if err == nil {
		m.saveFailed = false
		return nil
	}
	if !m.saveFailed {
		m.saveFailed = true
		m.alerter.Alert(ctx, "failed to save progress", err)
	}
	return err
}

// GlobalSaveIdentifier identifies the current global save.
func (m *Manager) GlobalSaveIdentifier() string {
	if m.global == nil {
		return ""
	}
	return m.global.Identifier
}

// SetReached records entry for a dialogue the first time it is reached. Later calls for the same key are ignored.
func (m *Manager) SetReached(nodeName string, dialogueIndex int, variablesHash uint64, entry RestoreEntry) {
	info := m.loaded().nodeInfo(variablesHash, nodeName, true)
	if _, ok := info.DialogueEntries[dialogueIndex]; ok {
		return
	}
	info.DialogueEntries[dialogueIndex] = entry
}

// GetReached returns the entry of a dialogue reached with the given variables hash or nil.
func (m *Manager) GetReached(nodeName string, dialogueIndex int, variablesHash uint64) RestoreEntry {
	info := m.loaded().nodeInfo(variablesHash, nodeName, false)
	if info == nil {
		return nil
	}
	return info.DialogueEntries[dialogueIndex]
}

// GetReachedForAnyVariables returns the entry of a dialogue reached with any variables or nil. When the dialogue was
// reached under several hashes, the entry of the smallest hash is returned.
func (m *Manager) GetReachedForAnyVariables(nodeName string, dialogueIndex int) RestoreEntry {
	for _, hash := range m.loaded().sortedHashes() {
		if entry := m.GetReached(nodeName, dialogueIndex, hash); entry != nil {
			return entry
		}
	}
	return nil
}

func (m *Manager) loaded() *GlobalSave {
	if m.global == nil {
		panic(ErrNotLoaded)
	}
	return m.global
}

// SetBranchReached records that branchName of nodeName was selected.
func (m *Manager) SetBranchReached(nodeName, branchName string, variablesHash uint64) {
	m.loaded().nodeInfo(variablesHash, nodeName, true).ReachedBranches[branchName] = struct{}{}
}

// IsBranchReached reports whether branchName of nodeName was selected with the given variables hash.
func (m *Manager) IsBranchReached(nodeName, branchName string, variablesHash uint64) bool {
	info := m.loaded().nodeInfo(variablesHash, nodeName, false)
	if info == nil {
		return false
	}
	_, ok := info.ReachedBranches[branchName]
	return ok
}

// IsBranchReachedForAnyVariables reports whether branchName of nodeName was ever selected.
func (m *Manager) IsBranchReachedForAnyVariables(nodeName, branchName string) bool {
	for hash := range m.loaded().Reached {
		if m.IsBranchReached(nodeName, branchName, hash) {
			return true
		}
	}
	return false
}

// SetEndReached records that the end point endName was reached.
func (m *Manager) SetEndReached(endName string) {
	m.loaded().ReachedEnds[endName] = struct{}{}
}

// IsEndReached reports whether the end point endName was reached.
func (m *Manager) IsEndReached(endName string) bool {
	_, ok := m.loaded().ReachedEnds[endName]
	return ok
}

// ReachedEnds returns the sorted names of every reached end point.
func (m *Manager) ReachedEnds() []string {
	return sortedSet(m.loaded().ReachedEnds)
}

// UnsetReachedNode forgets everything reached in nodeName. Used when the player diverges from a rewound history.
func (m *Manager) UnsetReachedNode(nodeName string) {
	for _, nodes := range m.loaded().Reached {
		delete(nodes, nodeName)
	}
}

// UnsetReachedDialogue forgets the dialogue at dialogueIndex of nodeName for every variables hash.
func (m *Manager) UnsetReachedDialogue(nodeName string, dialogueIndex int) {
	for _, nodes := range m.loaded().Reached {
		if info, ok := nodes[nodeName]; ok {
			delete(info.DialogueEntries, dialogueIndex)
		}
	}
}

// GetFlag returns the auxiliary value stored under key or defaultValue when it is missing or has another type.
func GetFlag[T any](m *Manager, key string, defaultValue T) T {
	raw, ok := m.loaded().Flags[key]
	if !ok {
		return defaultValue
	}
	var value T
	if err := cbor.Unmarshal(raw, &value); err != nil {
		m.logger.LogAttrs(context.Background(), slog.LevelWarn, "flag has unexpected type",
			slog.String("key", key), errors.SlogError(err))
		return defaultValue
	}
	return value
}

// SetFlag stores an auxiliary value. It is persisted with the next UpdateGlobalSave.
func (m *Manager) SetFlag(key string, value any) error {
	raw, err := cbor.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "marshal flag", slog.String("key", key))
	}
	m.loaded().Flags[key] = raw
	return nil
}

// SaveBookmark stores b in slot saveID and writes the global save so that the reached records the bookmark depends
// on are persisted with it.
func (m *Manager) SaveBookmark(ctx context.Context, saveID int, b *Bookmark) error {
	if m.global == nil {
		return ErrNotLoaded
	}
	ctx = logging.WithSaveSlot(ctx, saveID)
	b.GlobalSaveIdentifier = m.global.Identifier
	err := m.storage.Write(ctx, savefile.BookmarkName(saveID), func(w io.Writer) error {
		return savefile.Encode(w, b)
	})
	if err = m.reportWrite(ctx, errors.Wrap(err, "write bookmark")); err != nil {
		return err
	}
	m.cache.Add(saveID, b)
	m.saveSlots[saveID] = time.Now()
	m.logger.LogAttrs(ctx, slog.LevelDebug, "bookmark saved")
	return m.UpdateGlobalSave(ctx)
}

// LoadBookmark reads slot saveID from storage, bypassing the cache.
func (m *Manager) LoadBookmark(ctx context.Context, saveID int) (*Bookmark, error) {
	if m.global == nil {
		return nil, ErrNotLoaded
	}
	ctx = logging.WithSaveSlot(ctx, saveID)
	b := &Bookmark{}
	err := m.storage.Read(ctx, savefile.BookmarkName(saveID), func(r io.Reader) error {
		return savefile.Decode(r, b)
	})
	if errors.Is(err, savefile.ErrNotFound) {
		return nil, errors.Wrap(ErrBookmarkNotFound, "load bookmark", slog.Int("saveID", saveID))
	}
	if err != nil {
		return nil, errors.Wrap(err, "load bookmark", slog.Int("saveID", saveID))
	}
	if b.GlobalSaveIdentifier != m.global.Identifier {
		return nil, errors.Wrap(ErrIncompatibleBookmark, "load bookmark",
			slog.Int("saveID", saveID),
			slog.String("bookmarkIdentifier", b.GlobalSaveIdentifier),
			slog.String("globalIdentifier", m.global.Identifier))
	}
	m.cache.Add(saveID, b)
	return b, nil
}

// Bookmark returns slot saveID from the cache or storage.
func (m *Manager) Bookmark(ctx context.Context, saveID int) (*Bookmark, error) {
	if cached, ok := m.cache.Get(saveID); ok {
		return cached.(*Bookmark), nil //nolint:forcetypeassert // only bookmarks are cached
	}
	return m.LoadBookmark(ctx, saveID)
}

// DeleteBookmark removes slot saveID.
func (m *Manager) DeleteBookmark(ctx context.Context, saveID int) error {
	if err := m.storage.Delete(ctx, savefile.BookmarkName(saveID)); err != nil {
		return errors.Wrap(err, "delete bookmark", slog.Int("saveID", saveID))
	}
	m.cache.Remove(saveID)
	delete(m.saveSlots, saveID)
	return nil
}

// EagerLoadRange loads every stored bookmark in [begin, end) into the cache.
func (m *Manager) EagerLoadRange(ctx context.Context, begin, end int) error {
	for saveID := begin; saveID < end; saveID++ {
		if _, ok := m.saveSlots[saveID]; !ok {
			continue
		}
		if _, err := m.LoadBookmark(ctx, saveID); err != nil {
			return err
		}
	}
	return nil
}

// SaveIDs returns the IDs of every stored bookmark in ascending order.
func (m *Manager) SaveIDs() []int {
	ids := make([]int, 0, len(m.saveSlots))
	for id := range m.saveSlots {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// SaveTime returns the modification time of slot saveID.
func (m *Manager) SaveTime(saveID int) (time.Time, bool) {
	t, ok := m.saveSlots[saveID]
	return t, ok
}

// QuerySaveIDByTime returns the latest or earliest modified slot in [begin, end), or begin when the range is empty.
func (m *Manager) QuerySaveIDByTime(begin, end int, queryType SaveIDQueryType) int {
	found := false
	result := begin
	var resultTime time.Time
	for _, id := range m.SaveIDs() {
		if id < begin || id >= end {
			continue
		}
		t := m.saveSlots[id]
		better := !found ||
			(queryType == SaveIDQueryLatest && t.After(resultTime)) ||
			(queryType == SaveIDQueryEarliest && t.Before(resultTime))
		if better {
			found = true
			result = id
			resultTime = t
		}
	}
	return result
}

// QueryMaxSaveID returns the largest stored save ID, or begin when it is larger.
func (m *Manager) QueryMaxSaveID(begin int) int {
	result := begin
	for id := range m.saveSlots {
		if id > result {
			result = id
		}
	}
	return result
}

// QueryMinUnusedSaveID returns the smallest free slot in [begin, end), or end when every slot is used.
func (m *Manager) QueryMinUnusedSaveID(begin, end int) int {
	saveID := begin
	for saveID < end {
		if _, ok := m.saveSlots[saveID]; !ok {
			break
		}
		saveID++
	}
	return saveID
}
