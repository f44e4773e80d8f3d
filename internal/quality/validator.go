package quality

import (
	"fmt"
	"math"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/pkg/logger"
)

// Validator sanity-checks raw series before any computation.
// It is a pure predicate plus pass-through: inputs are never mutated.
// ⭐ SSOT: 원천 시계열 품질 검증은 여기서만
type Validator struct {
	config Config
	logger *logger.Logger
}

// Config holds validator thresholds
type Config struct {
	ExtremeMoveRatio float64 `yaml:"extreme_move_ratio"` // 10.0 (1000%) → split-unadjusted / corrupt
	ReturnTrim       float64 `yaml:"return_trim"`        // 1.0 (100%) → dropped before statistics
}

// DefaultConfig returns the default thresholds
func DefaultConfig() Config {
	return Config{
		ExtremeMoveRatio: 10.0,
		ReturnTrim:       1.0,
	}
}

// NewValidator creates a new Validator instance
func NewValidator(config Config, log *logger.Logger) *Validator {
	if log == nil {
		log = logger.Nop()
	}
	return &Validator{
		config: config,
		logger: log.WithField("module", "quality"),
	}
}

// Validate checks a raw price series.
// Returns the series unchanged on success or a *contracts.ValidationError.
func (v *Validator) Validate(series contracts.PriceSeries) (contracts.PriceSeries, error) {
	points := series.Points

	// 1. 최소 관측치
	if len(points) < 2 {
		return series, &contracts.ValidationError{
			Code:   contracts.CodeInsufficientData,
			Index:  -1,
			Detail: fmt.Sprintf("got %d points, need at least 2", len(points)),
		}
	}

	// 2. 가격 유효성 (NaN/Inf 먼저, 그 다음 부호)
	for i, p := range points {
		if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
			return series, &contracts.ValidationError{
				Code:   contracts.CodeNonFinite,
				Index:  i,
				Detail: fmt.Sprintf("price %v on %s", p.Price, p.Date.Format("2006-01-02")),
			}
		}
		if p.Price <= 0 {
			return series, &contracts.ValidationError{
				Code:   contracts.CodeNonPositivePrice,
				Index:  i,
				Detail: fmt.Sprintf("price %v on %s", p.Price, p.Date.Format("2006-01-02")),
			}
		}
	}

	// 3. 단일 기간 급등락 (분할 미반영/오염 데이터)
	// 하락도 대칭으로: 1:20 역분할은 +1900% 상승과 같은 배율
	for i := 1; i < len(points); i++ {
		r := points[i].Price/points[i-1].Price - 1
		move := math.Max(points[i].Price/points[i-1].Price, points[i-1].Price/points[i].Price) - 1
		if math.IsNaN(r) || math.IsInf(r, 0) || math.IsNaN(move) || math.IsInf(move, 0) {
			return series, &contracts.ValidationError{
				Code:   contracts.CodeNonFinite,
				Index:  i,
				Detail: "non-finite single-period return",
			}
		}
		if move > v.config.ExtremeMoveRatio {
			return series, &contracts.ValidationError{
				Code:  contracts.CodeExtremeMove,
				Index: i,
				Detail: fmt.Sprintf("return %.2f%% (%.1fx move) between %s and %s exceeds %.0f%%",
					r*100, move+1,
					points[i-1].Date.Format("2006-01-02"),
					points[i].Date.Format("2006-01-02"),
					v.config.ExtremeMoveRatio*100),
			}
		}
	}

	return series, nil
}

// ValidateReturns trims a derived return series before statistical reduction.
// Returns with |r| above the trim threshold, or non-finite ones, are dropped.
// Never fatal; the input slice is left untouched.
func (v *Validator) ValidateReturns(returns []float64) []float64 {
	out := make([]float64, 0, len(returns))
	for _, r := range returns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		if math.Abs(r) > v.config.ReturnTrim {
			continue
		}
		out = append(out, r)
	}

	if dropped := len(returns) - len(out); dropped > 0 {
		v.logger.WithFields(map[string]interface{}{
			"dropped": dropped,
			"kept":    len(out),
		}).Debug("Trimmed outlier returns")
	}

	return out
}

// ValidateDividends drops events with non-finite amounts.
// Negative amounts pass through: corrections net against the window sum,
// and the sum itself is sanity-checked when it is reported.
func (v *Validator) ValidateDividends(series contracts.DividendSeries) contracts.DividendSeries {
	out := contracts.DividendSeries{
		Symbol: series.Symbol,
		Events: make([]contracts.DividendEvent, 0, len(series.Events)),
	}

	for _, ev := range series.Events {
		if math.IsNaN(ev.Amount) || math.IsInf(ev.Amount, 0) {
			v.logger.WithFields(map[string]interface{}{
				"symbol": series.Symbol,
				"date":   ev.Date.Format("2006-01-02"),
				"amount": fmt.Sprint(ev.Amount),
			}).Warn("Dropped invalid dividend event")
			continue
		}
		out.Events = append(out.Events, ev)
	}

	return out
}
