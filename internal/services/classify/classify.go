package classify

import (
	"fmt"

	"MarketPulse/internal/domain/models"
)

// Threshold constants. All comparisons are strict, so a value sitting exactly
// on a boundary lands in the safer band.
const (
	// Yield-curve spread, percentage points. Below zero the curve is
	// inverted; the near-zero band is an early warning.
	YieldDangerBelow = 0.0
	YieldWarnBelow   = 0.001

	// Put/call ratio relative to its trailing average.
	PutCallDangerRatio = 1.25
	PutCallWarnRatio   = 1.10

	// Fixed fallback bands used when no trailing average is available.
	PutCallDangerAbs = 1.2
	PutCallWarnAbs   = 1.0
)

// Classify maps an indicator value (and optionally its trailing average) to a
// status band. Pure and total: a nil value yields StatusError, any numeric
// input yields a non-error band.
func Classify(value, trailingAverage *float64, kind models.IndicatorKind) models.Status {
	if value == nil {
		return models.StatusError
	}
	v := *value

	switch kind {
	case models.YieldCurveSpread:
		if v < YieldDangerBelow {
			return models.StatusDanger
		}
		if v < YieldWarnBelow {
			return models.StatusWarning
		}
		return models.StatusNormal

	case models.PutCallRatio:
		if trailingAverage != nil && *trailingAverage > 0 {
			avg := *trailingAverage
			if v > avg*PutCallDangerRatio {
				return models.StatusDanger
			}
			if v > avg*PutCallWarnRatio {
				return models.StatusWarning
			}
			return models.StatusNormal
		}
		if v > PutCallDangerAbs {
			return models.StatusDanger
		}
		if v > PutCallWarnAbs {
			return models.StatusWarning
		}
		return models.StatusNormal

	default:
		return models.StatusError
	}
}

// TrailingAverage returns the mean of up to window values taken from the end
// of vals (the most recent readings). Nil when vals is empty or window is
// non-positive.
func TrailingAverage(vals []float64, window int) *float64 {
	if len(vals) == 0 || window <= 0 {
		return nil
	}
	if window > len(vals) {
		window = len(vals)
	}
	sum := 0.0
	for _, v := range vals[len(vals)-window:] {
		sum += v
	}
	avg := sum / float64(window)
	return &avg
}

// FormatChange renders the signed percentage deviation of value from avg,
// e.g. "-13.3%". Nil when either input is missing or avg is zero.
func FormatChange(value, avg *float64) *string {
	if value == nil || avg == nil || *avg == 0 {
		return nil
	}
	pct := (*value - *avg) / *avg * 100
	s := fmt.Sprintf("%+.1f%%", pct)
	return &s
}
