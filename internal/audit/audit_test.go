// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type failingStore struct {
	appends int
}

func (f *failingStore) Append(context.Context, domain.AuditEntry) (domain.AuditEntry, error) {
	f.appends++
	return domain.AuditEntry{}, errors.New("disk full")
}

func (f *failingStore) Query(context.Context, string) ([]domain.AuditEntry, error) {
	return nil, errors.New("disk full")
}

func (f *failingStore) Clear(context.Context) error {
	return errors.New("disk full")
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	entries := []domain.AuditEntry{
		{ExecutionID: "exec-1", ChainID: "c", StepID: "A", Attempt: 1, Action: domain.AuditError, Error: "boom"},
		{ExecutionID: "exec-2", ChainID: "c", StepID: "A", Attempt: 1, Action: domain.AuditExecute, Output: "other"},
		{ExecutionID: "exec-1", ChainID: "c", StepID: "A", Attempt: 2, Action: domain.AuditExecute, Input: map[string]any{"q": "hi"}, Output: "ok", Duration: 15 * time.Millisecond},
	}
	for _, entry := range entries {
		entry.Timestamp = time.Now().UTC()
		if _, err := store.Append(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := store.Query(ctx, "exec-1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries for exec-1, got %d", len(got))
	}
	if got[0].Action != domain.AuditError || got[1].Action != domain.AuditExecute {
		t.Fatalf("expected insertion order error then execute, got %s then %s", got[0].Action, got[1].Action)
	}
	if got[0].Seq >= got[1].Seq {
		t.Fatalf("expected increasing seq, got %d then %d", got[0].Seq, got[1].Seq)
	}
	if got[1].Attempt != 2 || got[1].Output != "ok" {
		t.Fatalf("unexpected second entry: %+v", got[1])
	}

	all, err := store.Query(ctx, "")
	if err != nil {
		t.Fatalf("query all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries overall, got %d", len(all))
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	all, err = store.Query(ctx, "")
	if err != nil {
		t.Fatalf("query after clear: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty log after clear, got %d", len(all))
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "test:audit", discardLogger())
	exerciseStore(t, store)

	if mr.Exists("test:audit") {
		t.Fatal("expected list key to be removed by clear")
	}
}

func TestRedisStoreConcurrentAppendsKeepSeqOrder(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "test:audit", discardLogger())
	ctx := context.Background()

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := store.Append(ctx, domain.AuditEntry{
					ExecutionID: fmt.Sprintf("exec-%d", w),
					StepID:      "A",
					Attempt:     i + 1,
					Action:      domain.AuditExecute,
				}); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	all, err := store.Query(ctx, "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != writers*perWriter {
		t.Fatalf("expected %d entries, got %d", writers*perWriter, len(all))
	}
	for i, entry := range all {
		if entry.Seq != int64(i+1) {
			t.Fatalf("entry %d has seq %d; list order and seq diverged", i, entry.Seq)
		}
	}
}

func TestRedisStoreDurationSurvivesRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "", discardLogger())
	ctx := context.Background()
	if _, err := store.Append(ctx, domain.AuditEntry{
		ExecutionID: "e",
		StepID:      "A",
		Attempt:     1,
		Action:      domain.AuditExecute,
		Duration:    250 * time.Millisecond,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := store.Query(ctx, "e")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Duration != 250*time.Millisecond {
		t.Fatalf("expected 250ms duration, got %+v", got)
	}
	if !mr.Exists(DefaultRedisKey) {
		t.Fatalf("expected default key %q", DefaultRedisKey)
	}
}

func TestLogAppendSwallowsStoreErrors(t *testing.T) {
	store := &failingStore{}
	log := NewLog(store, discardLogger())

	log.Append(context.Background(), domain.AuditEntry{ExecutionID: "e", StepID: "A", Action: domain.AuditExecute})

	if store.appends != 1 {
		t.Fatalf("expected one append attempt, got %d", store.appends)
	}
	if _, err := log.Query(context.Background(), "e"); err == nil {
		t.Fatal("expected query error to propagate")
	}
	if err := log.Clear(context.Background()); err == nil {
		t.Fatal("expected clear error to propagate")
	}
}

func TestLogStampsMissingTimestamp(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	log := NewLog(store, discardLogger())
	log.now = func() time.Time { return fixed }

	log.Append(context.Background(), domain.AuditEntry{ExecutionID: "e", StepID: "A", Action: domain.AuditExecute})

	got, err := log.Query(context.Background(), "e")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || !got[0].Timestamp.Equal(fixed) {
		t.Fatalf("expected stamped timestamp, got %+v", got)
	}
}
