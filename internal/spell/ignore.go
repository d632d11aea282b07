package spell

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// IgnoreHash identifies an ignored (keyword, ruleId) pair.
func IgnoreHash(keyword, ruleID string) string {
	sum := sha256.Sum256([]byte(keyword + "|" + ruleID))
	return hex.EncodeToString(sum[:])
}

// IgnoreBackend persists ignore hashes per track.
type IgnoreBackend interface {
	LoadIgnores(trackID string) ([]string, error)
	AddIgnore(trackID, hash string) error
}

// IgnoreList filters spell matches against the keywords a user ignored
// track-wide. It caches the hash set in memory and writes additions
// through to the backend.
type IgnoreList struct {
	mu      sync.RWMutex
	trackID string
	backend IgnoreBackend
	hashes  map[string]struct{}
}

// NewIgnoreList loads the ignore set for a track. A nil backend yields
// an in-memory-only list.
func NewIgnoreList(trackID string, backend IgnoreBackend) (*IgnoreList, error) {
	l := &IgnoreList{trackID: trackID, backend: backend, hashes: make(map[string]struct{})}
	if backend != nil {
		stored, err := backend.LoadIgnores(trackID)
		if err != nil {
			return nil, err
		}
		for _, h := range stored {
			l.hashes[h] = struct{}{}
		}
	}
	return l, nil
}

// Ignore records a keyword/rule pair as ignored.
func (l *IgnoreList) Ignore(keyword, ruleID string) error {
	hash := IgnoreHash(keyword, ruleID)
	l.mu.Lock()
	l.hashes[hash] = struct{}{}
	l.mu.Unlock()
	if l.backend != nil {
		return l.backend.AddIgnore(l.trackID, hash)
	}
	return nil
}

// Ignored reports whether the keyword/rule pair has been ignored.
func (l *IgnoreList) Ignored(keyword, ruleID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.hashes[IgnoreHash(keyword, ruleID)]
	return ok
}

// Filter drops matches whose keyword (sliced from the checked plain
// text) and rule have been ignored.
func (l *IgnoreList) Filter(text string, matches []Match) []Match {
	kept := make([]Match, 0, len(matches))
	for _, m := range matches {
		if l.Ignored(Keyword(text, m.Offset, m.Length), m.RuleID) {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

// Keyword extracts the flagged substring of the checked text.
func Keyword(text string, offset, length int) string {
	if offset < 0 || offset >= len(text) {
		return ""
	}
	end := offset + length
	if end > len(text) {
		end = len(text)
	}
	return text[offset:end]
}
