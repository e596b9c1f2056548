package ppool

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// shardEntry wraps a stored record with an insertion sequence number so
// the oldest-inserted entry in a tier can be found for capacity-overflow
// eviction.
type shardEntry struct {
	seq uint64
	rec *Record
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*shardEntry
}

// tierStore is one tier's sharded in-memory record map: a fixed set of
// shards selected by rendezvous hashing of the proxy identity string, to
// bound per-shard mutex contention. All mutation still happens under
// the owning Manager's mutex; sharding here bounds the cost of
// concurrent read-mostly scans (selection, revalidate_due) rather than
// replacing the manager-wide lock.
type tierStore struct {
	shards []*shard
	table  *rendezvous.Rendezvous
	seq    uint64
}

func newTierStore(n int) *tierStore {
	if n <= 0 {
		n = 1
	}
	nodes := make([]string, n)
	shards := make([]*shard, n)
	for i := 0; i < n; i++ {
		nodes[i] = strconv.Itoa(i)
		shards[i] = &shard{entries: make(map[string]*shardEntry)}
	}
	return &tierStore{
		shards: shards,
		table:  rendezvous.New(nodes, xxhash.Sum64String),
	}
}

func (t *tierStore) shardFor(key string) *shard {
	node := t.table.Lookup(key)
	idx, err := strconv.Atoi(node)
	if err != nil || idx < 0 || idx >= len(t.shards) {
		idx = 0
	}
	return t.shards[idx]
}

func (t *tierStore) put(rec *Record) {
	key := rec.Identity.String()
	sh := t.shardFor(key)
	seq := atomic.AddUint64(&t.seq, 1)
	sh.mu.Lock()
	sh.entries[key] = &shardEntry{seq: seq, rec: rec}
	sh.mu.Unlock()
}

func (t *tierStore) get(key string) (*Record, bool) {
	sh := t.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[key]
	if !ok {
		return nil, false
	}
	return e.rec, true
}

func (t *tierStore) delete(key string) {
	sh := t.shardFor(key)
	sh.mu.Lock()
	delete(sh.entries, key)
	sh.mu.Unlock()
}

func (t *tierStore) len() int {
	n := 0
	for _, sh := range t.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// all returns every record currently stored, in no particular order.
func (t *tierStore) all() []*Record {
	out := make([]*Record, 0, t.len())
	for _, sh := range t.shards {
		sh.mu.Lock()
		for _, e := range sh.entries {
			out = append(out, e.rec)
		}
		sh.mu.Unlock()
	}
	return out
}

// oldest returns the identity key of the entry with the lowest
// insertion sequence number across all shards, i.e. the oldest-inserted
// record still present.
func (t *tierStore) oldest() (string, bool) {
	var (
		bestKey   string
		bestSeq   uint64
		found     bool
	)
	for _, sh := range t.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			if !found || e.seq < bestSeq {
				bestKey, bestSeq, found = key, e.seq, true
			}
		}
		sh.mu.Unlock()
	}
	return bestKey, found
}
