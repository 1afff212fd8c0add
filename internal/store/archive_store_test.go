package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/panel-kit/ticket-core/internal/domain"
)

func archivedTicket(id int, channelID, userID string, created, archived time.Time) domain.Ticket {
	return domain.Ticket{
		ID:          id,
		ChannelID:   channelID,
		CommunityID: "guild-1",
		UserID:      userID,
		Type:        "Support",
		Closed:      true,
		CreatedAt:   created,
		ArchivedAt:  &archived,
	}
}

func TestArchiveStoreAppendAndGet(t *testing.T) {
	a := NewArchiveStore(t.TempDir(), zap.NewNop())

	created := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	archived := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)

	if err := a.Append(archivedTicket(7, "chan-7", "user-1", created, archived)); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, ok, err := a.Get("guild-1", 7)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.ChannelID != "chan-7" || got.ArchivedAt == nil || !got.ArchivedAt.Equal(archived) {
		t.Fatalf("archived record drifted: %+v", got)
	}

	if _, ok, err := a.Get("guild-1", 99); err != nil || ok {
		t.Fatalf("missing id: ok=%v err=%v", ok, err)
	}
	if _, ok, err := a.Get("guild-2", 7); err != nil || ok {
		t.Fatal("id lookup must be community-scoped")
	}

	// Appending without an archival timestamp is a caller bug.
	if err := a.Append(domain.Ticket{ID: 8, ChannelID: "chan-8"}); err == nil {
		t.Fatal("expected error for ticket without archived_at")
	}
}

func TestArchiveStoreShardPartitioning(t *testing.T) {
	dir := t.TempDir()
	a := NewArchiveStore(dir, zap.NewNop())

	july := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)
	august := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)

	if err := a.Append(archivedTicket(1, "chan-1", "user-1", july.AddDate(0, 0, -1), july)); err != nil {
		t.Fatal(err)
	}
	if err := a.Append(archivedTicket(2, "chan-2", "user-1", august.AddDate(0, 0, -1), august)); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"tickets-2026-07.json", "tickets-2026-08.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected shard %s: %v", name, err)
		}
	}
}

func TestArchiveStoreGetByUserNewestFirst(t *testing.T) {
	a := NewArchiveStore(t.TempDir(), zap.NewNop())

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		created := base.AddDate(0, 0, i)
		archived := created.AddDate(0, 1, 0)
		if err := a.Append(archivedTicket(i, "chan-"+string(rune('0'+i)), "user-1", created, archived)); err != nil {
			t.Fatal(err)
		}
	}
	other := archivedTicket(9, "chan-x", "user-2", base, base.AddDate(0, 1, 0))
	if err := a.Append(other); err != nil {
		t.Fatal(err)
	}

	got, err := a.GetByUser("user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 tickets, got %d", len(got))
	}
	for i := 0; i < len(got)-1; i++ {
		if got[i].CreatedAt.Before(got[i+1].CreatedAt) {
			t.Fatalf("results not newest-first: %v before %v", got[i].CreatedAt, got[i+1].CreatedAt)
		}
	}
}

func TestArchiveStoreMaxIDs(t *testing.T) {
	a := NewArchiveStore(t.TempDir(), zap.NewNop())

	archived := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	tickets := []domain.Ticket{
		archivedTicket(3, "chan-a", "user-1", archived.AddDate(0, 0, -5), archived),
		archivedTicket(12, "chan-b", "user-1", archived.AddDate(0, 0, -4), archived),
	}
	outside := archivedTicket(4, "chan-c", "user-2", archived.AddDate(0, 0, -3), archived)
	outside.CommunityID = "guild-2"
	tickets = append(tickets, outside)

	for _, ticket := range tickets {
		if err := a.Append(ticket); err != nil {
			t.Fatal(err)
		}
	}

	max, err := a.MaxIDs()
	if err != nil {
		t.Fatal(err)
	}
	if max["guild-1"] != 12 || max["guild-2"] != 4 {
		t.Fatalf("unexpected max ids: %v", max)
	}
}

func TestArchiveStorePrune(t *testing.T) {
	dir := t.TempDir()
	a := NewArchiveStore(dir, zap.NewNop())

	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	months := []time.Time{
		now,                   // current month, never pruned
		now.AddDate(0, -3, 0), // inside retention
		now.AddDate(0, -7, 0),
		now.AddDate(0, -12, 0),
	}
	for i, at := range months {
		if err := a.Append(archivedTicket(i+1, "chan-"+string(rune('a'+i)), "user-1", at.AddDate(0, 0, -1), at)); err != nil {
			t.Fatal(err)
		}
	}

	pruned, err := a.PruneOlderThan(now, 6)
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 2 {
		t.Fatalf("want 2 pruned shards, got %d", pruned)
	}

	keys, err := a.shardKeys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("want 2 surviving shards, got %v", keys)
	}
	for _, key := range keys {
		if key < "2026-03" {
			t.Fatalf("expired shard survived: %s", key)
		}
	}

	if _, err := a.PruneOlderThan(now, 0); err == nil {
		t.Fatal("zero retention must be rejected")
	}
}
