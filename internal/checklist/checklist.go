// Package checklist resolves a shift's duty list from the tenant's templates
// and keeps the per-shift completion overlay aligned with it.
package checklist

import (
	"github.com/dukerupert/shiftboard/internal/model"
)

// Segments returns the template segments that make up a shift segment, in
// display order.
func Segments(seg model.Segment) []model.Segment {
	switch seg {
	case model.SegmentFull:
		return []model.Segment{model.SegmentMorning, model.SegmentCommon, model.SegmentEvening}
	case model.SegmentMorning:
		return []model.Segment{model.SegmentMorning, model.SegmentCommon}
	case model.SegmentEvening:
		return []model.Segment{model.SegmentCommon, model.SegmentEvening}
	default:
		return []model.Segment{model.SegmentCommon}
	}
}

// Resolve builds the ordered checklist for a shift segment from a role's
// template items. Items are grouped by segment in the order given by
// Segments and keep their relative input order (insertion id) within a group.
// The result is the index space every duty toggle is keyed against.
func Resolve(items []model.ChecklistItem, seg model.Segment) []model.ChecklistItem {
	var resolved []model.ChecklistItem
	for _, part := range Segments(seg) {
		for _, it := range items {
			if it.Segment == part {
				resolved = append(resolved, it)
			}
		}
	}
	return resolved
}

// Titles returns the item texts in order.
func Titles(items []model.ChecklistItem) []string {
	titles := make([]string, len(items))
	for i, it := range items {
		titles[i] = it.Text
	}
	return titles
}

// Reconcile rebuilds an overlay against the resolved checklist titles.
// Position i keeps its done flag only when the overlay has an entry at i
// with the same title; new or shifted items start undone. The result always
// has exactly len(titles) entries.
func Reconcile(overlay []model.Duty, titles []string) []model.Duty {
	out := make([]model.Duty, len(titles))
	for i, title := range titles {
		out[i] = model.Duty{Title: title}
		if i < len(overlay) && overlay[i].Title == title {
			out[i].Done = overlay[i].Done
		}
	}
	return out
}

// Toggle reconciles the overlay and sets the done flag at index. ok is false
// when index is outside the resolved checklist.
func Toggle(overlay []model.Duty, titles []string, index int, done bool) (duties []model.Duty, ok bool) {
	if index < 0 || index >= len(titles) {
		return nil, false
	}
	duties = Reconcile(overlay, titles)
	duties[index].Done = done
	return duties, true
}

// Count returns how many duties are done and the total.
func Count(duties []model.Duty) (done, total int) {
	for _, d := range duties {
		if d.Done {
			done++
		}
	}
	return done, len(duties)
}

// Percent is floor(done*100/total), or 0 for an empty checklist.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}

// Missed returns the titles of duties not done, in checklist order.
func Missed(duties []model.Duty) []string {
	missed := []string{}
	for _, d := range duties {
		if !d.Done {
			missed = append(missed, d.Title)
		}
	}
	return missed
}

type Grade string

const (
	GradeExcellent Grade = "excellent"
	GradeGood      Grade = "good"
	GradeAttention Grade = "attention"
)

// GradeFor bands a completion percentage. An empty checklist reports 0% and
// lands in GradeAttention.
func GradeFor(percent int) Grade {
	switch {
	case percent >= 100:
		return GradeExcellent
	case percent >= 80:
		return GradeGood
	default:
		return GradeAttention
	}
}
