package service

import (
	"fmt"
	"time"
)

// QuotaDecision is the outcome of evaluating a user's entitlement against
// their usage for the day.
type QuotaDecision struct {
	Allowed bool
	Reason  string
}

// EvaluateQuota decides whether a generation may proceed. Pro users are
// never limited; free users are allowed while today's count is below the
// daily limit. Pure function, no hidden state.
func EvaluateQuota(isPro bool, todayCount, dailyLimit int) QuotaDecision {
	if isPro {
		return QuotaDecision{Allowed: true}
	}
	if todayCount >= dailyLimit {
		return QuotaDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("Daily limit reached (%d/day on Free)", dailyLimit),
		}
	}
	return QuotaDecision{Allowed: true}
}

// DayBounds returns the half-open interval [local midnight, next local
// midnight) containing now. An event stamped exactly at midnight belongs
// to the day that opens, so every event is counted exactly once.
func DayBounds(now time.Time) (start, end time.Time) {
	start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 0, 1)
}

// QuotaExceededError is returned by the generation gate when a free user
// is over their daily limit.
type QuotaExceededError struct {
	DailyLimit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("Daily limit reached (%d/day on Free)", e.DailyLimit)
}
