package store

import (
	"testing"
	"time"

	"github.com/dukerupert/shiftboard/internal/model"
)

func TestChecklistItemOrdering(t *testing.T) {
	db := setupTestDB(t)
	tid := seedTenant(t, db, "Cafe")
	cs := NewChecklistStore(db)
	ctx := t.Context()

	cs.CreateItem(ctx, tid, "waiter", model.SegmentEvening, "Lock door", "")
	cs.CreateItem(ctx, tid, "waiter", model.SegmentCommon, "Wipe tables", "")
	cs.CreateItem(ctx, tid, "waiter", model.SegmentMorning, "Open shutters", model.KindPhoto)
	cs.CreateItem(ctx, tid, "waiter", model.SegmentMorning, "Coffee machine", "")
	cs.CreateItem(ctx, tid, "cook", model.SegmentMorning, "Ovens", "")

	items, err := cs.ListItems(ctx, tid, "waiter")
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	want := []string{"Open shutters", "Coffee machine", "Wipe tables", "Lock door"}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, w := range want {
		if items[i].Text != w {
			t.Errorf("items[%d].Text = %q, want %q", i, items[i].Text, w)
		}
	}
	if items[0].Kind != model.KindPhoto {
		t.Errorf("kind = %q, want %q", items[0].Kind, model.KindPhoto)
	}
	if items[1].Kind != model.KindSimple {
		t.Errorf("default kind = %q, want %q", items[1].Kind, model.KindSimple)
	}
}

func TestChecklistItemsScopedByTenant(t *testing.T) {
	db := setupTestDB(t)
	a := seedTenant(t, db, "A")
	b := seedTenant(t, db, "B")
	cs := NewChecklistStore(db)
	ctx := t.Context()

	item, _ := cs.CreateItem(ctx, a, "waiter", model.SegmentCommon, "Floors", "")

	items, err := cs.ListItems(ctx, b, "waiter")
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("tenant B sees %d items of tenant A", len(items))
	}

	// Mutations from another tenant are no-ops.
	cs.UpdateItemText(ctx, b, item.ID, "Hijacked")
	cs.DeleteItem(ctx, b, item.ID)
	items, _ = cs.ListItems(ctx, a, "waiter")
	if len(items) != 1 || items[0].Text != "Floors" {
		t.Errorf("items = %+v, want untouched Floors", items)
	}
}

func TestClaimReminderOnce(t *testing.T) {
	db := setupTestDB(t)
	tid := seedTenant(t, db, "Cafe", 1)
	cs := NewChecklistStore(db)
	ss := NewShiftStore(db)
	ctx := t.Context()

	r, err := cs.CreateReminder(ctx, tid, "waiter", "Check toilets", 60)
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	sh, _, err := ss.StartIfNoneOpen(ctx, tid, 1, "waiter", model.SegmentFull, t0)
	if err != nil {
		t.Fatalf("start shift: %v", err)
	}

	first, err := cs.ClaimReminder(ctx, sh.ID, r.ID, 1)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	second, err := cs.ClaimReminder(ctx, sh.ID, r.ID, 1)
	if err != nil {
		t.Fatalf("claim again: %v", err)
	}
	next, err := cs.ClaimReminder(ctx, sh.ID, r.ID, 2)
	if err != nil {
		t.Fatalf("claim next boundary: %v", err)
	}
	if !first || second || !next {
		t.Errorf("claims = %v, %v, %v; want true, false, true", first, second, next)
	}
}

func TestPruneSentReminders(t *testing.T) {
	db := setupTestDB(t)
	tid := seedTenant(t, db, "Cafe", 1, 2)
	cs := NewChecklistStore(db)
	ss := NewShiftStore(db)
	ctx := t.Context()

	r, _ := cs.CreateReminder(ctx, tid, "waiter", "Check toilets", 30)
	open, _, _ := ss.StartIfNoneOpen(ctx, tid, 1, "waiter", model.SegmentFull, t0)
	closing, _, _ := ss.StartIfNoneOpen(ctx, tid, 2, "waiter", model.SegmentFull, t0)
	cs.ClaimReminder(ctx, open.ID, r.ID, 1)
	cs.ClaimReminder(ctx, closing.ID, r.ID, 1)

	if _, ok, err := ss.Close(ctx, closing, closing.Version, `{"duties":[]}`, "", t0.Add(time.Hour)); err != nil || !ok {
		t.Fatalf("close: ok=%v err=%v", ok, err)
	}

	n, err := cs.PruneSentReminders(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	again, _ := cs.ClaimReminder(ctx, open.ID, r.ID, 1)
	if again {
		t.Error("claim of open shift was pruned")
	}
}
