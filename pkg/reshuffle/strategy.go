package reshuffle

import (
	"errors"
	"fmt"
	"time"

	"tripflow/pkg/model"
)

// StrategyKind names a replan rule.
type StrategyKind string

const (
	StrategyCompressRemaining  StrategyKind = "compress_remaining"
	StrategyDropLowestPriority StrategyKind = "drop_lowest_priority"
	StrategyShiftToLater       StrategyKind = "shift_to_later"
	StrategySwapActivity       StrategyKind = "swap_activity"
)

// ErrInapplicable marks a strategy that cannot be satisfied against the
// current schedule. Callers surface it as a structured failure, never a
// mutation.
var ErrInapplicable = errors.New("strategy not applicable")

// Strategy is a ranked candidate fix for a trigger.
type Strategy struct {
	Kind StrategyKind `json:"kind"`
	Rank int          `json:"rank"`
	// Impact is a human-readable estimate of what applying this costs.
	Impact string `json:"impact"`
	// RequiresConfirmation is true whenever the strategy would drop or
	// substantially shorten a slot.
	RequiresConfirmation bool `json:"requires_confirmation"`
	// SlotID targets a specific slot (drop, swap).
	SlotID string `json:"slot_id,omitempty"`
	// Alternative is the substitute activity for swap_activity.
	Alternative *model.Activity `json:"alternative,omitempty"`
	// DelayMinutes is the drift the strategy is resolving.
	DelayMinutes int `json:"delay_minutes"`
}

// Change describes one slot-level modification an applied strategy made.
type Change struct {
	SlotID string `json:"slot_id"`
	Kind   string `json:"kind"` // shifted, shrunk, dropped, swapped
	Detail string `json:"detail"`
}

// substantialShrinkFraction is the share of a slot's duration beyond which a
// shrink needs user confirmation.
const substantialShrinkFraction = 0.25

// --- proposers ---

func (d *Detector) proposeForDelay(req CheckRequest, sched model.DaySchedule) []Strategy {
	var out []Strategy
	if s, ok := d.compressCandidate(req, sched, 1); ok {
		out = append(out, s)
	}
	if s, ok := shiftCandidate(req, sched, len(out)+1); ok {
		out = append(out, s)
	}
	if s, ok := dropCandidate(req, sched, len(out)+1); ok {
		out = append(out, s)
	}
	return out
}

func (d *Detector) proposeForWeather(req CheckRequest, sched model.DaySchedule) []Strategy {
	var out []Strategy
	if len(sched.RemainingAt(req.Now)) > 0 {
		out = append(out, Strategy{
			Kind:                 StrategySwapActivity,
			Rank:                 1,
			Impact:               "replaces the exposed activity with an indoor alternative",
			RequiresConfirmation: true,
			DelayMinutes:         req.DelayMinutes,
		})
	}
	if s, ok := shiftCandidate(req, sched, len(out)+1); ok {
		out = append(out, s)
	}
	if s, ok := dropCandidate(req, sched, len(out)+1); ok {
		out = append(out, s)
	}
	return out
}

func (d *Detector) proposeForUserIssue(req CheckRequest, sched model.DaySchedule) []Strategy {
	var out []Strategy
	if s, ok := dropCandidate(req, sched, 1); ok {
		out = append(out, s)
	}
	if s, ok := d.compressCandidate(req, sched, len(out)+1); ok {
		out = append(out, s)
	}
	if s, ok := shiftCandidate(req, sched, len(out)+1); ok {
		out = append(out, s)
	}
	return out
}

func (d *Detector) proposeForLocation(req CheckRequest, sched model.DaySchedule) []Strategy {
	var out []Strategy
	if s, ok := shiftCandidate(req, sched, 1); ok {
		out = append(out, s)
	}
	if s, ok := dropCandidate(req, sched, len(out)+1); ok {
		out = append(out, s)
	}
	return out
}

func (d *Detector) compressCandidate(req CheckRequest, sched model.DaySchedule, rank int) (Strategy, bool) {
	need := time.Duration(req.DelayMinutes) * time.Minute
	if need <= 0 {
		need = d.delayThreshold
	}
	region, total := compressibleRegion(sched, req.Now, d.floor)
	if total < need || len(region) == 0 {
		return Strategy{}, false
	}

	// Confirmation is needed when any slot would lose a substantial share of
	// its duration.
	confirm := false
	for _, idx := range region {
		slot := sched.Slots[idx]
		shrinkable := slot.Duration() - d.floor
		if shrinkable <= 0 {
			continue
		}
		share := float64(need) * (float64(shrinkable) / float64(total))
		if share > float64(slot.Duration())*substantialShrinkFraction {
			confirm = true
			break
		}
	}

	return Strategy{
		Kind:                 StrategyCompressRemaining,
		Rank:                 rank,
		Impact:               fmt.Sprintf("shortens %d remaining activities to absorb %d minutes", len(region), int(need.Minutes())),
		RequiresConfirmation: confirm,
		DelayMinutes:         int(need.Minutes()),
	}, true
}

func shiftCandidate(req CheckRequest, sched model.DaySchedule, rank int) (Strategy, bool) {
	pending := notStarted(sched, req.Now)
	if len(pending) == 0 {
		return Strategy{}, false
	}
	for _, idx := range pending {
		if sched.Slots[idx].Locked {
			return Strategy{}, false
		}
	}
	minutes := req.DelayMinutes
	if minutes <= 0 {
		minutes = 15
	}
	return Strategy{
		Kind:         StrategyShiftToLater,
		Rank:         rank,
		Impact:       fmt.Sprintf("pushes %d activities %d minutes later", len(pending), minutes),
		DelayMinutes: minutes,
	}, true
}

func dropCandidate(req CheckRequest, sched model.DaySchedule, rank int) (Strategy, bool) {
	idx, ok := droppableSlot(sched, req.Now)
	if !ok {
		return Strategy{}, false
	}
	slot := sched.Slots[idx]
	return Strategy{
		Kind:                 StrategyDropLowestPriority,
		Rank:                 rank,
		Impact:               fmt.Sprintf("drops %q, freeing %d minutes", slot.Activity.Name, int(slot.Duration().Minutes())),
		RequiresConfirmation: true,
		SlotID:               slot.ID,
		DelayMinutes:         req.DelayMinutes,
	}, true
}

// --- application rules ---

// apply computes a new schedule from the strategy's rule. The input schedule
// is never mutated; on error the caller keeps the original.
func apply(s Strategy, sched model.DaySchedule, now time.Time, floor time.Duration) (model.DaySchedule, []Change, error) {
	switch s.Kind {
	case StrategyCompressRemaining:
		return applyCompress(s, sched, now, floor)
	case StrategyShiftToLater:
		return applyShift(s, sched, now)
	case StrategyDropLowestPriority:
		return applyDrop(s, sched, now)
	case StrategySwapActivity:
		return applySwap(s, sched)
	default:
		return model.DaySchedule{}, nil, fmt.Errorf("unknown strategy kind: %q", s.Kind)
	}
}

// applyCompress shifts all not-yet-started slots forward by the delay and
// proportionally shrinks their durations, never below the floor, so the day
// still ends on time. A locked slot bounds the compressible region: the full
// delay must be absorbed before it.
func applyCompress(s Strategy, sched model.DaySchedule, now time.Time, floor time.Duration) (model.DaySchedule, []Change, error) {
	need := time.Duration(s.DelayMinutes) * time.Minute
	if need <= 0 {
		return model.DaySchedule{}, nil, fmt.Errorf("compress needs a positive delay, got %d minutes", s.DelayMinutes)
	}

	region, total := compressibleRegion(sched, now, floor)
	if total < need {
		return model.DaySchedule{}, nil, fmt.Errorf("%w: only %d shrinkable minutes remain, need %d",
			ErrInapplicable, int(total.Minutes()), int(need.Minutes()))
	}

	// Proportional shrink allocation, residue on the last shrinkable slot.
	shrinks := make(map[int]time.Duration, len(region))
	var allocated time.Duration
	lastShrinkable := -1
	for _, idx := range region {
		shrinkable := sched.Slots[idx].Duration() - floor
		if shrinkable <= 0 {
			continue
		}
		share := time.Duration(float64(need) * float64(shrinkable) / float64(total))
		share = share.Round(time.Minute)
		if share > shrinkable {
			share = shrinkable
		}
		shrinks[idx] = share
		allocated += share
		lastShrinkable = idx
	}
	if lastShrinkable >= 0 {
		residue := need - allocated
		adjusted := shrinks[lastShrinkable] + residue
		maxShrink := sched.Slots[lastShrinkable].Duration() - floor
		if adjusted < 0 || adjusted > maxShrink {
			// Rounding pushed the residue out of range; fall back to a
			// greedy sweep.
			return applyCompressGreedy(need, region, sched, now, floor)
		}
		shrinks[lastShrinkable] = adjusted
	}

	out := sched.Clone()
	var changes []Change
	carry := need
	for _, idx := range region {
		slot := out.Slots[idx]
		shrink := shrinks[idx]
		newStart := slot.Start.Add(carry)
		carry -= shrink
		newDur := slot.Duration() - shrink
		out.Slots[idx].Start = newStart
		out.Slots[idx].End = newStart.Add(newDur)
		detail := fmt.Sprintf("starts %d minutes later", int(newStart.Sub(slot.Start).Minutes()))
		kind := "shifted"
		if shrink > 0 {
			kind = "shrunk"
			detail += fmt.Sprintf(", %d minutes shorter", int(shrink.Minutes()))
		}
		changes = append(changes, Change{SlotID: slot.ID, Kind: kind, Detail: detail})
	}
	return out, changes, nil
}

// applyCompressGreedy absorbs the delay front to back instead of
// proportionally. Used when proportional rounding cannot be balanced.
func applyCompressGreedy(need time.Duration, region []int, sched model.DaySchedule, now time.Time, floor time.Duration) (model.DaySchedule, []Change, error) {
	out := sched.Clone()
	var changes []Change
	carry := need
	remaining := need
	for _, idx := range region {
		slot := out.Slots[idx]
		shrink := slot.Duration() - floor
		if shrink > remaining {
			shrink = remaining
		}
		if shrink < 0 {
			shrink = 0
		}
		remaining -= shrink

		newStart := slot.Start.Add(carry)
		carry -= shrink
		out.Slots[idx].Start = newStart
		out.Slots[idx].End = newStart.Add(slot.Duration() - shrink)
		changes = append(changes, Change{SlotID: slot.ID, Kind: "shrunk",
			Detail: fmt.Sprintf("starts %d minutes later, %d minutes shorter", int(newStart.Sub(slot.Start).Minutes()), int(shrink.Minutes()))})
	}
	if remaining > 0 {
		return model.DaySchedule{}, nil, fmt.Errorf("%w: %d minutes of delay could not be absorbed",
			ErrInapplicable, int(remaining.Minutes()))
	}
	return out, changes, nil
}

// applyShift pushes every not-yet-started slot later by the delay.
func applyShift(s Strategy, sched model.DaySchedule, now time.Time) (model.DaySchedule, []Change, error) {
	minutes := s.DelayMinutes
	if minutes <= 0 {
		return model.DaySchedule{}, nil, fmt.Errorf("shift needs a positive delay, got %d minutes", minutes)
	}
	pending := notStarted(sched, now)
	if len(pending) == 0 {
		return model.DaySchedule{}, nil, fmt.Errorf("%w: no remaining slots to shift", ErrInapplicable)
	}
	for _, idx := range pending {
		if sched.Slots[idx].Locked {
			return model.DaySchedule{}, nil, fmt.Errorf("%w: %q is locked and cannot be moved",
				ErrInapplicable, sched.Slots[idx].Activity.Name)
		}
	}

	shift := time.Duration(minutes) * time.Minute
	out := sched.Clone()
	var changes []Change
	for _, idx := range pending {
		out.Slots[idx].Start = out.Slots[idx].Start.Add(shift)
		out.Slots[idx].End = out.Slots[idx].End.Add(shift)
		changes = append(changes, Change{SlotID: out.Slots[idx].ID, Kind: "shifted",
			Detail: fmt.Sprintf("starts %d minutes later", minutes)})
	}
	return out, changes, nil
}

// applyDrop removes the least rigid remaining slot (or the explicitly
// targeted one) and pulls later slots earlier by the freed time, up to the
// delay being resolved.
func applyDrop(s Strategy, sched model.DaySchedule, now time.Time) (model.DaySchedule, []Change, error) {
	var idx int
	if s.SlotID != "" {
		slot, i, ok := sched.SlotByID(s.SlotID)
		if !ok {
			return model.DaySchedule{}, nil, fmt.Errorf("%w: slot %s not in schedule", ErrInapplicable, s.SlotID)
		}
		if slot.Locked {
			return model.DaySchedule{}, nil, fmt.Errorf("%w: %q is locked and cannot be dropped", ErrInapplicable, slot.Activity.Name)
		}
		idx = i
	} else {
		var ok bool
		idx, ok = droppableSlot(sched, now)
		if !ok {
			return model.DaySchedule{}, nil, fmt.Errorf("%w: no unlocked remaining slot to drop", ErrInapplicable)
		}
	}

	dropped := sched.Slots[idx]
	freed := dropped.Duration()
	residual := time.Duration(s.DelayMinutes)*time.Minute - freed
	if residual < 0 {
		residual = 0
	}

	out := sched.Clone()
	out.Slots = append(out.Slots[:idx], out.Slots[idx+1:]...)
	changes := []Change{{SlotID: dropped.ID, Kind: "dropped",
		Detail: fmt.Sprintf("%q removed, freeing %d minutes", dropped.Activity.Name, int(freed.Minutes()))}}

	// Any delay the freed time did not cover still pushes later unlocked
	// slots back.
	if residual > 0 {
		for i := range out.Slots {
			if !out.Slots[i].Start.After(now) || out.Slots[i].Locked {
				continue
			}
			out.Slots[i].Start = out.Slots[i].Start.Add(residual)
			out.Slots[i].End = out.Slots[i].End.Add(residual)
			changes = append(changes, Change{SlotID: out.Slots[i].ID, Kind: "shifted",
				Detail: fmt.Sprintf("starts %d minutes later", int(residual.Minutes()))})
		}
	}
	return out, changes, nil
}

// applySwap substitutes the alternative activity into the targeted slot,
// keeping its timing.
func applySwap(s Strategy, sched model.DaySchedule) (model.DaySchedule, []Change, error) {
	if s.SlotID == "" || s.Alternative == nil {
		return model.DaySchedule{}, nil, fmt.Errorf("%w: swap needs a target slot and an alternative activity", ErrInapplicable)
	}
	slot, idx, ok := sched.SlotByID(s.SlotID)
	if !ok {
		return model.DaySchedule{}, nil, fmt.Errorf("%w: slot %s not in schedule", ErrInapplicable, s.SlotID)
	}
	if slot.Locked {
		return model.DaySchedule{}, nil, fmt.Errorf("%w: %q is locked and cannot be swapped", ErrInapplicable, slot.Activity.Name)
	}

	out := sched.Clone()
	old := out.Slots[idx].Activity.Name
	out.Slots[idx].Activity = *s.Alternative
	return out, []Change{{SlotID: slot.ID, Kind: "swapped",
		Detail: fmt.Sprintf("%q replaced with %q", old, s.Alternative.Name)}}, nil
}

// --- region helpers ---

// notStarted returns indices of slots whose start is still ahead of now.
func notStarted(sched model.DaySchedule, now time.Time) []int {
	var out []int
	for i, s := range sched.Slots {
		if s.Start.After(now) {
			out = append(out, i)
		}
	}
	return out
}

// compressibleRegion returns the indices of not-yet-started unlocked slots up
// to the first locked slot, plus the total shrinkable duration within them.
func compressibleRegion(sched model.DaySchedule, now time.Time, floor time.Duration) ([]int, time.Duration) {
	var region []int
	var total time.Duration
	for _, idx := range notStarted(sched, now) {
		if sched.Slots[idx].Locked {
			break
		}
		region = append(region, idx)
		if shrinkable := sched.Slots[idx].Duration() - floor; shrinkable > 0 {
			total += shrinkable
		}
	}
	return region, total
}

// droppableSlot picks the least rigid remaining unlocked slot. Ties go to the
// lower-rated activity, then the later start.
func droppableSlot(sched model.DaySchedule, now time.Time) (int, bool) {
	best := -1
	for _, idx := range notStarted(sched, now) {
		if sched.Slots[idx].Locked {
			continue
		}
		if best == -1 {
			best = idx
			continue
		}
		cand, cur := sched.Slots[idx], sched.Slots[best]
		switch {
		case cand.Rigidity < cur.Rigidity:
			best = idx
		case cand.Rigidity == cur.Rigidity && cand.Activity.Rating < cur.Activity.Rating:
			best = idx
		case cand.Rigidity == cur.Rigidity && cand.Activity.Rating == cur.Activity.Rating && cand.Start.After(cur.Start):
			best = idx
		}
	}
	return best, best != -1
}
