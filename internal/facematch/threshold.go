package facematch

import (
	"context"
	"fmt"
	"math"

	"github.com/kozaktomas/facesearch/internal/config"
	"github.com/kozaktomas/facesearch/internal/database"
	"github.com/kozaktomas/facesearch/internal/faceerr"
)

// Bounds is an inclusive threshold range.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// HardBounds is the range every threshold lives in.
var HardBounds = Bounds{Min: config.ThresholdHardMin, Max: config.ThresholdHardMax}

// Contains reports whether v lies in the range. NaN is never contained.
func (b Bounds) Contains(v float64) bool {
	return !math.IsNaN(v) && v >= b.Min && v <= b.Max
}

func (b Bounds) check(v float64) error {
	if !b.Contains(v) {
		return fmt.Errorf("%w: threshold %v outside [%v, %v]", faceerr.ErrOutOfRange, v, b.Min, b.Max)
	}
	return nil
}

// ThresholdPolicy stores and resolves per-user match thresholds.
type ThresholdPolicy struct {
	settings database.SettingsStore
	def      float64
	bounds   Bounds
}

// NewThresholdPolicy creates a policy. Stored values must lie within [cfg.Min, cfg.Max].
func NewThresholdPolicy(settings database.SettingsStore, cfg config.ThresholdConfig) *ThresholdPolicy {
	return &ThresholdPolicy{
		settings: settings,
		def:      cfg.Default,
		bounds:   Bounds{Min: cfg.Min, Max: cfg.Max},
	}
}

// Default returns the threshold used when a user has none stored.
func (p *ThresholdPolicy) Default() float64 {
	return p.def
}

// Bounds returns the range accepted by Set.
func (p *ThresholdPolicy) Bounds() Bounds {
	return p.bounds
}

// Get returns the user's stored threshold, or the default.
func (p *ThresholdPolicy) Get(ctx context.Context, userID string) (float64, error) {
	if userID == "" {
		return p.def, nil
	}
	v, ok, err := p.settings.GetThreshold(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get threshold of user %s: %w", userID, err)
	}
	if !ok {
		return p.def, nil
	}
	return v, nil
}

// Set stores the user's threshold.
func (p *ThresholdPolicy) Set(ctx context.Context, userID string, v float64) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", faceerr.ErrInvalidArgument)
	}
	if err := p.bounds.check(v); err != nil {
		return err
	}
	if err := p.settings.SetThreshold(ctx, userID, v); err != nil {
		return fmt.Errorf("set threshold of user %s: %w", userID, err)
	}
	return nil
}

// Resolve picks the threshold for one verification: the explicit value when given,
// then the user's stored value, then the default.
func (p *ThresholdPolicy) Resolve(ctx context.Context, userID string, explicit *float64) (float64, error) {
	if explicit != nil {
		if err := HardBounds.check(*explicit); err != nil {
			return 0, err
		}
		return *explicit, nil
	}
	return p.Get(ctx, userID)
}
