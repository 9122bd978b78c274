package store

import (
	"encoding/binary"
)

var (
	finalizedPrefix  = []byte("finalized/")
	darkRecordPrefix = []byte("darkrecord/")
)

// Ledger persists the two pieces of state spec.md §6.4 requires to
// survive a restart: the append-only finalized-vertex log (keyed by
// insertion index) and the owned DarkRecord log (keyed by name, so it can
// be replayed and re-published on startup). The long-term signing key is
// deliberately absent here — it is supplied by the caller's own
// secret-management collaborator.
type Ledger struct {
	db Database
}

// NewLedger wraps a Database as a Ledger.
func NewLedger(db Database) *Ledger {
	return &Ledger{db: db}
}

func finalizedKey(index uint64) []byte {
	key := make([]byte, len(finalizedPrefix)+8)
	copy(key, finalizedPrefix)
	binary.LittleEndian.PutUint64(key[len(finalizedPrefix):], index)
	return key
}

// AppendFinalized records vertexBytes (the canonical wire encoding) as
// the vertex finalized at the given insertion index. Append-only: callers
// must not rewrite an existing index.
func (l *Ledger) AppendFinalized(index uint64, vertexBytes []byte) error {
	return l.db.Put(finalizedKey(index), vertexBytes)
}

// FinalizedAt returns the vertex bytes stored at insertion index, if any.
func (l *Ledger) FinalizedAt(index uint64) ([]byte, error) {
	return l.db.Get(finalizedKey(index))
}

func darkRecordKey(name string) []byte {
	return append(append([]byte{}, darkRecordPrefix...), []byte(name)...)
}

// PutDarkRecord stores the canonical bytes of a DarkRecord this node owns,
// so RegisterShadow/Register survive a restart and can be republished.
func (l *Ledger) PutDarkRecord(name string, recordBytes []byte) error {
	return l.db.Put(darkRecordKey(name), recordBytes)
}

// DarkRecord returns the stored owned record for name, or nil if none.
func (l *Ledger) DarkRecord(name string) ([]byte, error) {
	return l.db.Get(darkRecordKey(name))
}

// DeleteDarkRecord removes an owned record, e.g. after a successful revoke.
func (l *Ledger) DeleteDarkRecord(name string) error {
	return l.db.Delete(darkRecordKey(name))
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
