package store

import (
	"slices"
	"sort"

	"github.com/blackwell-systems/appregistry/internal/identity"
)

// Record is one row of the registry table.
type Record struct {
	ID          int64
	Identity    identity.Key
	Title       string
	Icon        []byte // nil when no icon could be decoded
	LaunchCount int64
}

// NewRecord describes a row to insert.
type NewRecord struct {
	Identity identity.Key
	Title    string
	Icon     []byte
}

// Update refreshes the title and icon of an existing row. The id and the
// launch count are left untouched.
type Update struct {
	ID    int64
	Title string
	Icon  []byte
}

// Batch is the set of mutations ApplyBatch executes as one transaction.
// Removals run first, then updates, then additions.
type Batch struct {
	Added      []NewRecord
	RemovedIDs []int64
	Updated    []Update

	// SkipDuplicates turns an identity conflict on an added row into a
	// skip instead of a failed batch. Skipped rows do not appear in the
	// resulting ChangeRecord.
	SkipDuplicates bool
}

// Empty reports whether the batch would change nothing.
func (b Batch) Empty() bool {
	return len(b.Added) == 0 && len(b.RemovedIDs) == 0 && len(b.Updated) == 0
}

// ChangeRecord describes what one committed mutation altered. Removals are
// reported either per identity or, for whole-package removal, by package
// name; never both.
type ChangeRecord struct {
	AddedIDs          []int64        `json:"added_ids,omitempty"`
	UpdatedIDs        []int64        `json:"updated_ids,omitempty"`
	RemovedIdentities []identity.Key `json:"removed_identities,omitempty"`
	RemovedPackage    string         `json:"removed_package,omitempty"`
}

// Empty reports whether the record describes no change at all.
func (c *ChangeRecord) Empty() bool {
	return c == nil || (len(c.AddedIDs) == 0 && len(c.UpdatedIDs) == 0 &&
		len(c.RemovedIdentities) == 0 && c.RemovedPackage == "")
}

// Clone returns a deep copy of c.
func (c *ChangeRecord) Clone() *ChangeRecord {
	if c == nil {
		return nil
	}
	return &ChangeRecord{
		AddedIDs:          slices.Clone(c.AddedIDs),
		UpdatedIDs:        slices.Clone(c.UpdatedIDs),
		RemovedIdentities: slices.Clone(c.RemovedIdentities),
		RemovedPackage:    c.RemovedPackage,
	}
}

// Publisher receives every committed ChangeRecord. Publish is called while
// the store's write lock is held, so it must not call back into the store.
type Publisher interface {
	Publish(change *ChangeRecord)
}

// sortKeys orders removed identities canonically so that change records are
// deterministic.
func sortKeys(keys []identity.Key) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
}
