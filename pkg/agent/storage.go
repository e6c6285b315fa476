package agent

import (
	"strconv"

	"github.com/jllopis/nerve/pkg/agent/events"
)

// StorageKind selects how a storage is presented and mutated.
type StorageKind int

const (
	// StorageTagged holds key/value entries.
	StorageTagged StorageKind = iota
	// StorageUntagged holds a list of values keyed by position.
	StorageUntagged
	// StorageCompletion holds a list of values with a done flag.
	StorageCompletion
	// StorageCurrentPrevious holds one current value and the one it replaced.
	StorageCurrentPrevious
)

func (k StorageKind) String() string {
	switch k {
	case StorageTagged:
		return "tagged"
	case StorageUntagged:
		return "untagged"
	case StorageCompletion:
		return "completion"
	case StorageCurrentPrevious:
		return "current_previous"
	default:
		return "unknown"
	}
}

// TaggedStorage declares a key/value storage.
func TaggedStorage(name string) StorageDescriptor {
	return StorageDescriptor{Name: name, Kind: StorageTagged}
}

// UntaggedStorage declares a list storage.
func UntaggedStorage(name string) StorageDescriptor {
	return StorageDescriptor{Name: name, Kind: StorageUntagged}
}

// CompletionStorage declares a checklist storage.
func CompletionStorage(name string) StorageDescriptor {
	return StorageDescriptor{Name: name, Kind: StorageCompletion}
}

// CurrentPreviousStorage declares a single slot storage.
func CurrentPreviousStorage(name string) StorageDescriptor {
	return StorageDescriptor{Name: name, Kind: StorageCurrentPrevious}
}

// Entry is one storage element.
type Entry struct {
	Key      string
	Data     string
	Complete bool
}

const (
	currentKey  = "current"
	previousKey = "previous"
)

// Storage is a named, ordered key/value area. Every mutation emits a
// storage_update event; delivery failures are ignored here and surface on the
// next State.OnEvent call.
type Storage struct {
	name    string
	kind    StorageKind
	entries []Entry
	events  *events.Sender
}

func newStorage(desc StorageDescriptor, sender *events.Sender) *Storage {
	s := &Storage{name: desc.Name, kind: desc.Kind, events: sender}
	// predefined entries are sorted so the seed order is deterministic
	for _, key := range sortedKeys(desc.Predefined) {
		s.entries = append(s.entries, Entry{Key: key, Data: desc.Predefined[key]})
	}
	return s
}

// Name returns the storage name.
func (s *Storage) Name() string { return s.name }

// Kind returns the storage kind.
func (s *Storage) Kind() StorageKind { return s.kind }

// Len returns the number of entries.
func (s *Storage) Len() int { return len(s.entries) }

// Entries returns a copy of the entries in order.
func (s *Storage) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// Get returns the value stored under key.
func (s *Storage) Get(key string) (string, bool) {
	if i := s.index(key); i >= 0 {
		return s.entries[i].Data, true
	}
	return "", false
}

func (s *Storage) index(key string) int {
	for i, e := range s.entries {
		if e.Key == key {
			return i
		}
	}
	return -1
}

func (s *Storage) emit(key, prev, next string) {
	if s.events == nil {
		return
	}
	_ = s.events.Send(events.StorageUpdate(s.name, s.kind.String(), key, prev, next))
}

// AddTagged sets key to data, replacing an existing value in place.
func (s *Storage) AddTagged(key, data string) {
	prev := ""
	if i := s.index(key); i >= 0 {
		prev = s.entries[i].Data
		s.entries[i].Data = data
	} else {
		s.entries = append(s.entries, Entry{Key: key, Data: data})
	}
	s.emit(key, prev, data)
}

// DelTagged removes key and returns its value.
func (s *Storage) DelTagged(key string) (string, bool) {
	i := s.index(key)
	if i < 0 {
		return "", false
	}
	prev := s.entries[i].Data
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.emit(key, prev, "")
	return prev, true
}

// AddUntagged appends data to the list.
func (s *Storage) AddUntagged(data string) {
	s.entries = append(s.entries, Entry{Data: data})
	s.rekey()
	s.emit(strconv.Itoa(len(s.entries)-1), "", data)
}

// DelUntagged removes the element at zero based pos.
func (s *Storage) DelUntagged(pos int) (string, bool) {
	if pos < 0 || pos >= len(s.entries) {
		return "", false
	}
	prev := s.entries[pos].Data
	s.entries = append(s.entries[:pos], s.entries[pos+1:]...)
	s.rekey()
	s.emit(strconv.Itoa(pos), prev, "")
	return prev, true
}

// AddCompletion appends an incomplete element.
func (s *Storage) AddCompletion(data string) {
	s.AddUntagged(data)
}

// DelCompletion removes the element at zero based pos.
func (s *Storage) DelCompletion(pos int) (string, bool) {
	return s.DelUntagged(pos)
}

// SetComplete marks the element at pos done.
func (s *Storage) SetComplete(pos int) bool {
	return s.setComplete(pos, true)
}

// SetIncomplete marks the element at pos not done.
func (s *Storage) SetIncomplete(pos int) bool {
	return s.setComplete(pos, false)
}

func (s *Storage) setComplete(pos int, done bool) bool {
	if pos < 0 || pos >= len(s.entries) {
		return false
	}
	s.entries[pos].Complete = done
	state := "incomplete"
	if done {
		state = "complete"
	}
	s.emit(strconv.Itoa(pos), s.entries[pos].Data, state)
	return true
}

// SetCurrent stores data as the current value, moving the old one to previous.
func (s *Storage) SetCurrent(data string) {
	prev, hadPrev := s.Get(currentKey)
	s.entries = s.entries[:0]
	if hadPrev {
		s.entries = append(s.entries, Entry{Key: previousKey, Data: prev})
	}
	s.entries = append(s.entries, Entry{Key: currentKey, Data: data})
	s.emit(currentKey, prev, data)
}

// Current returns the current value of a single slot storage.
func (s *Storage) Current() string {
	v, _ := s.Get(currentKey)
	return v
}

// Previous returns the value replaced by the last SetCurrent.
func (s *Storage) Previous() string {
	v, _ := s.Get(previousKey)
	return v
}

// Clear removes every entry.
func (s *Storage) Clear() {
	s.entries = nil
	s.emit("", "", "")
}

func (s *Storage) rekey() {
	for i := range s.entries {
		s.entries[i].Key = strconv.Itoa(i)
	}
}
