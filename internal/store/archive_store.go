package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/panel-kit/ticket-core/internal/domain"
)

// shardFilePattern matches archive shard documents: tickets-YYYY-MM.json.
var shardFilePattern = regexp.MustCompile(`^tickets-(\d{4}-\d{2})\.json$`)

// ShardKey is the archival-month partition key, e.g. "2026-09".
func ShardKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// ArchiveStore is the durable, month-partitioned store of archived tickets.
// Each shard is one JSON document mapping channel id to the final ticket
// record; writes are read-modify-write and serialized per shard.
type ArchiveStore struct {
	dir    string
	logger *zap.Logger

	mu     sync.Mutex
	shards map[string]*sync.Mutex
}

// NewArchiveStore builds an archive rooted at dir.
func NewArchiveStore(dir string, logger *zap.Logger) *ArchiveStore {
	return &ArchiveStore{
		dir:    dir,
		logger: logger,
		shards: make(map[string]*sync.Mutex),
	}
}

func (a *ArchiveStore) shardLock(key string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.shards[key]
	if !ok {
		lock = &sync.Mutex{}
		a.shards[key] = lock
	}
	return lock
}

func (a *ArchiveStore) shardPath(key string) string {
	return filepath.Join(a.dir, fmt.Sprintf("tickets-%s.json", key))
}

func (a *ArchiveStore) readShard(key string) (map[string]domain.Ticket, error) {
	raw, err := os.ReadFile(a.shardPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]domain.Ticket), nil
		}
		return nil, err
	}
	shard := make(map[string]domain.Ticket)
	if err := json.Unmarshal(raw, &shard); err != nil {
		return nil, fmt.Errorf("parse shard %s: %w", key, err)
	}
	return shard, nil
}

func (a *ArchiveStore) writeShard(key string, shard map[string]domain.Ticket) error {
	data, err := json.MarshalIndent(shard, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return err
	}
	return atomic.WriteFile(a.shardPath(key), bytes.NewReader(data))
}

// Append writes an archived ticket into the shard for its archival month.
// The ticket must already carry ArchivedAt.
func (a *ArchiveStore) Append(ticket domain.Ticket) error {
	if ticket.ArchivedAt == nil {
		return fmt.Errorf("ticket %d has no archived_at", ticket.ID)
	}
	key := ShardKey(*ticket.ArchivedAt)

	lock := a.shardLock(key)
	lock.Lock()
	defer lock.Unlock()

	shard, err := a.readShard(key)
	if err != nil {
		return err
	}
	shard[ticket.ChannelID] = ticket
	return a.writeShard(key, shard)
}

// Get looks up an archived ticket by community and sequence id.
func (a *ArchiveStore) Get(communityID string, id int) (domain.Ticket, bool, error) {
	keys, err := a.shardKeys()
	if err != nil {
		return domain.Ticket{}, false, err
	}
	for _, key := range keys {
		lock := a.shardLock(key)
		lock.Lock()
		shard, err := a.readShard(key)
		lock.Unlock()
		if err != nil {
			return domain.Ticket{}, false, err
		}
		for _, ticket := range shard {
			if ticket.CommunityID == communityID && ticket.ID == id {
				return ticket, true, nil
			}
		}
	}
	return domain.Ticket{}, false, nil
}

// GetByUser returns every archived ticket created by the user, newest
// first.
func (a *ArchiveStore) GetByUser(userID string) ([]domain.Ticket, error) {
	keys, err := a.shardKeys()
	if err != nil {
		return nil, err
	}
	var out []domain.Ticket
	for _, key := range keys {
		lock := a.shardLock(key)
		lock.Lock()
		shard, err := a.readShard(key)
		lock.Unlock()
		if err != nil {
			return nil, err
		}
		for _, ticket := range shard {
			if ticket.UserID == userID {
				out = append(out, ticket)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// MaxIDs returns the highest archived ticket id per community, used to
// seed sequence allocation at startup.
func (a *ArchiveStore) MaxIDs() (map[string]int, error) {
	keys, err := a.shardKeys()
	if err != nil {
		return nil, err
	}
	max := make(map[string]int)
	for _, key := range keys {
		lock := a.shardLock(key)
		lock.Lock()
		shard, err := a.readShard(key)
		lock.Unlock()
		if err != nil {
			return nil, err
		}
		for _, ticket := range shard {
			if ticket.ID > max[ticket.CommunityID] {
				max[ticket.CommunityID] = ticket.ID
			}
		}
	}
	return max, nil
}

// PruneOlderThan deletes whole shards older than retentionMonths, counted
// back from now. The current month's shard is never pruned, and a shard
// being written is waited for, not raced.
func (a *ArchiveStore) PruneOlderThan(now time.Time, retentionMonths int) (int, error) {
	if retentionMonths <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %d", retentionMonths)
	}
	keys, err := a.shardKeys()
	if err != nil {
		return 0, err
	}
	cutoff := now.UTC().AddDate(0, -retentionMonths, 0).Format("2006-01")
	current := ShardKey(now)

	pruned := 0
	for _, key := range keys {
		if key == current || key >= cutoff {
			continue
		}
		lock := a.shardLock(key)
		lock.Lock()
		err := os.Remove(a.shardPath(key))
		lock.Unlock()
		if err != nil && !os.IsNotExist(err) {
			return pruned, err
		}
		a.logger.Info("archive shard pruned", zap.String("shard", key))
		pruned++
	}
	return pruned, nil
}

// shardKeys lists existing shard partition keys, oldest first.
func (a *ArchiveStore) shardKeys() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if m := shardFilePattern.FindStringSubmatch(entry.Name()); m != nil {
			keys = append(keys, m[1])
		}
	}
	sort.Strings(keys)
	return keys, nil
}
