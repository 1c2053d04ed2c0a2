package journal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Desai0/CR-Neuro/internal/action"
	"github.com/Desai0/CR-Neuro/internal/config"
	"github.com/Desai0/CR-Neuro/internal/journal"
	"github.com/Desai0/CR-Neuro/internal/types"
)

func openMemory(t *testing.T, instanceID string) *journal.Journal {
	t.Helper()
	j, err := journal.Open(context.Background(), instanceID, config.JournalConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestActionRoundTrip(t *testing.T) {
	j := openMemory(t, "bot-a")
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	played := action.Result{
		Action:     types.Action{Slot: 2, Target: types.Point{X: 460, Y: 920}, Rule: types.RuleDefense},
		Clamped:    types.Point{X: 3134, Y: 955},
		Dispatched: true,
		At:         base,
	}
	failed := action.Result{
		Action: types.Action{Slot: 0, Target: types.Point{X: 1, Y: 2}, Rule: types.RuleAttackEconomy},
		Err:    errors.New("click failed"),
		At:     base.Add(time.Second),
	}
	for _, r := range []action.Result{played, failed} {
		if err := j.RecordAction(ctx, r); err != nil {
			t.Fatalf("RecordAction() failed: %v", err)
		}
	}

	got, err := j.RecentActions(ctx, 10)
	if err != nil {
		t.Fatalf("RecentActions() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}

	// Newest first
	if got[0].Rule != types.RuleAttackEconomy || got[0].Dispatched || got[0].Error != "click failed" {
		t.Errorf("newest record = %+v", got[0])
	}
	want := got[1]
	if want.Slot != 2 || want.Target != (types.Point{X: 460, Y: 920}) ||
		want.Clamped != (types.Point{X: 3134, Y: 955}) || !want.Dispatched || !want.At.Equal(base) {
		t.Errorf("oldest record = %+v", want)
	}
	if want.InstanceID != "bot-a" {
		t.Errorf("InstanceID = %q, want bot-a", want.InstanceID)
	}
}

func TestEventRoundTrip(t *testing.T) {
	j := openMemory(t, "bot-b")
	ctx := context.Background()

	if err := j.RecordEvent(ctx, "game_start", types.GameState{Elixir: types.Known(7)}); err != nil {
		t.Fatalf("RecordEvent() failed: %v", err)
	}
	if err := j.RecordEvent(ctx, "match_over", types.GameState{}); err != nil {
		t.Fatalf("RecordEvent() failed: %v", err)
	}

	got, err := j.RecentEvents(ctx, 0)
	if err != nil {
		t.Fatalf("RecentEvents() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}

	byEvent := map[string]types.Reading{}
	for _, e := range got {
		byEvent[e.Event] = e.Elixir
	}
	if byEvent["game_start"] != types.Known(7) {
		t.Errorf("game_start elixir = %v, want 7", byEvent["game_start"])
	}
	if byEvent["match_over"].Known {
		t.Errorf("match_over elixir = %v, want unknown", byEvent["match_over"])
	}
}

func TestOpenRejects(t *testing.T) {
	ctx := context.Background()
	if _, err := journal.Open(ctx, "x", config.JournalConfig{Driver: "sqlite"}); err == nil {
		t.Error("Open() with empty dsn returned nil error")
	}
	if _, err := journal.Open(ctx, "x", config.JournalConfig{Driver: "mysql", DSN: "db"}); err == nil {
		t.Error("Open() with unknown driver returned nil error")
	}
}

func TestRebindDollar(t *testing.T) {
	got := journal.RebindDollar("SELECT a FROM t WHERE b = ? AND c = ? LIMIT ?")
	want := "SELECT a FROM t WHERE b = $1 AND c = $2 LIMIT $3"
	if got != want {
		t.Errorf("RebindDollar() = %q, want %q", got, want)
	}
}
