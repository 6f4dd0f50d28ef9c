package aggregation

import (
	"fmt"

	"quantflow/internal/clock"
	"quantflow/internal/model"
)

// ValidateComposite checks that a composite bar type's underlying interval
// can actually assemble the standard interval: both time based, with the
// standard interval a whole multiple of the underlying.
func ValidateComposite(barType model.BarType) error {
	if !barType.IsComposite() {
		return nil
	}
	composite := barType.Composite()
	if !barType.Spec.Aggregation.IsTimeBased() || !composite.Spec.Aggregation.IsTimeBased() {
		return nil
	}
	outer := barType.Spec.TimedeltaNanos()
	inner := composite.Spec.TimedeltaNanos()
	if inner == 0 || outer < inner || outer%inner != 0 {
		return fmt.Errorf("composite bar type %s: underlying interval must evenly divide the standard interval", barType)
	}
	return nil
}

// NewAggregator builds the aggregator for the bar type. Time bars need a
// clock; renko bars need the instrument's price increment.
func NewAggregator(
	c clock.Clock,
	barType model.BarType,
	instrument model.Instrument,
	cfg TimeBarConfig,
	handler BarHandler,
) (Aggregator, error) {
	if err := ValidateComposite(barType); err != nil {
		return nil, err
	}
	switch {
	case barType.Spec.Aggregation.IsTimeBased():
		return NewTimeBarAggregator(c, barType, cfg, handler)
	case barType.Spec.Aggregation == model.Tick:
		return NewTickBarAggregator(barType, handler), nil
	case barType.Spec.Aggregation == model.Volume:
		return NewVolumeBarAggregator(barType, handler), nil
	case barType.Spec.Aggregation == model.Value:
		return NewValueBarAggregator(barType, handler), nil
	case barType.Spec.Aggregation == model.Renko:
		return NewRenkoBarAggregator(barType, instrument.PriceIncrement, handler), nil
	default:
		return nil, fmt.Errorf("no aggregator for %v", barType.Spec.Aggregation)
	}
}
