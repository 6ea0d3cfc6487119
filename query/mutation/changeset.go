package mutation

import (
	"sort"
	"sync"

	"github.com/satishbabariya/contentql/query/acl"
	"github.com/satishbabariya/contentql/query/sqlgen"
)

// ChangeSet collects the rows written by a request for verification before commit
type ChangeSet struct {
	mu      sync.Mutex
	order   []string
	changes map[string]*acl.Change
}

// NewChangeSet creates an empty change set
func NewChangeSet() *ChangeSet {
	return &ChangeSet{changes: make(map[string]*acl.Change)}
}

func changeKey(entity string, event acl.Event, pk any) string {
	return entity + "\x00" + string(event) + "\x00" + sqlgen.Key(pk)
}

// Add records a change, merging fields of repeated writes to the same row
func (c *ChangeSet) Add(change acl.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := changeKey(change.Entity, change.Event, change.PrimaryValue)
	existing, ok := c.changes[key]
	if !ok {
		change.Fields = append([]string(nil), change.Fields...)
		c.changes[key] = &change
		c.order = append(c.order, key)
		return
	}
	seen := make(map[string]bool, len(existing.Fields))
	for _, f := range existing.Fields {
		seen[f] = true
	}
	for _, f := range change.Fields {
		if !seen[f] {
			existing.Fields = append(existing.Fields, f)
		}
	}
	sort.Strings(existing.Fields)
}

// Deleted forgets pending changes of a row removed later in the request
func (c *ChangeSet) Deleted(entity string, pk any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, event := range []acl.Event{acl.EventCreate, acl.EventUpdate} {
		delete(c.changes, changeKey(entity, event, pk))
	}
	kept := c.order[:0]
	for _, key := range c.order {
		if _, ok := c.changes[key]; ok {
			kept = append(kept, key)
		}
	}
	c.order = kept
}

// Changes returns the pending changes in recording order
func (c *ChangeSet) Changes() []acl.Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]acl.Change, 0, len(c.changes))
	for _, key := range c.order {
		if ch, ok := c.changes[key]; ok {
			out = append(out, *ch)
		}
	}
	return out
}
