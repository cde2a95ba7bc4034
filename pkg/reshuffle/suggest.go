package reshuffle

import (
	"fmt"
	"strings"

	"tripflow/pkg/model"
)

// Suggestion is the single best strategy for a free-text complaint, with a
// human-readable preview. Application is deferred to a subsequent Apply call.
type Suggestion struct {
	Strategy             Strategy `json:"strategy"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
	Explanation          string   `json:"explanation"`
}

// intentRule maps complaint keywords to a preferred strategy kind. Rules are
// evaluated in order; the first match wins.
type intentRule struct {
	keywords []string
	kind     StrategyKind
	reason   string
}

var intentRules = []intentRule{
	{
		keywords: []string{"closed", "closure", "shut"},
		kind:     StrategySwapActivity,
		reason:   "the venue sounds closed, so swapping in an alternative keeps the slot useful",
	},
	{
		keywords: []string{"tired", "exhausted", "too much", "skip", "drop", "overwhelmed"},
		kind:     StrategyDropLowestPriority,
		reason:   "dropping the most flexible remaining activity lightens the day",
	},
	{
		keywords: []string{"rain", "storm", "weather", "snow"},
		kind:     StrategySwapActivity,
		reason:   "bad weather favors swapping the exposed activity for an indoor one",
	},
	{
		keywords: []string{"late", "behind", "delay", "slow", "missed", "stuck"},
		kind:     StrategyCompressRemaining,
		reason:   "compressing the remaining activities recovers the lost time",
	},
	{
		keywords: []string{"more time", "longer", "extend", "stay"},
		kind:     StrategyShiftToLater,
		reason:   "shifting the rest of the day later buys time here",
	},
}

// Suggest maps a free-text user complaint to the closest strategy via keyword
// matching. When the preferred strategy is not feasible against the schedule,
// it falls back to the next feasible one.
func (s *Service) Suggest(tripID, message string, sched model.DaySchedule, req CheckRequest) (Suggestion, error) {
	if tripID == "" {
		return Suggestion{}, fmt.Errorf("tripId is required")
	}
	if strings.TrimSpace(message) == "" {
		return Suggestion{}, fmt.Errorf("message is required")
	}

	lower := strings.ToLower(message)
	kind := StrategyCompressRemaining
	reason := "compressing the remaining activities is the least disruptive default"
	for _, rule := range intentRules {
		if containsAny(lower, rule.keywords) {
			kind = rule.kind
			reason = rule.reason
			break
		}
	}

	strat, ok := s.candidate(kind, req, sched)
	if !ok {
		// Fall back through the remaining kinds in preference order.
		for _, alt := range []StrategyKind{StrategyShiftToLater, StrategyCompressRemaining, StrategyDropLowestPriority} {
			if alt == kind {
				continue
			}
			if strat, ok = s.candidate(alt, req, sched); ok {
				reason = fmt.Sprintf("%s is not feasible right now; %s is the next best option", kind, alt)
				break
			}
		}
	}
	if !ok {
		return Suggestion{}, fmt.Errorf("no feasible strategy for the current schedule")
	}

	return Suggestion{
		Strategy:             strat,
		RequiresConfirmation: strat.RequiresConfirmation,
		Explanation:          fmt.Sprintf("Suggesting %s: %s. It %s.", strat.Kind, reason, strat.Impact),
	}, nil
}

func (s *Service) candidate(kind StrategyKind, req CheckRequest, sched model.DaySchedule) (Strategy, bool) {
	switch kind {
	case StrategyCompressRemaining:
		return s.det.compressCandidate(req, sched, 1)
	case StrategyShiftToLater:
		return shiftCandidate(req, sched, 1)
	case StrategyDropLowestPriority:
		return dropCandidate(req, sched, 1)
	case StrategySwapActivity:
		if len(sched.RemainingAt(req.Now)) == 0 {
			return Strategy{}, false
		}
		return Strategy{
			Kind:                 StrategySwapActivity,
			Rank:                 1,
			Impact:               "swaps the affected activity for an alternative of your choice",
			RequiresConfirmation: true,
			DelayMinutes:         req.DelayMinutes,
		}, true
	}
	return Strategy{}, false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
