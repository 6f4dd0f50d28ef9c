package model

import (
	"fmt"
	"strconv"
	"strings"
)

// BarSpecification is the binning rule for a bar type: a positive step, an
// aggregation method and the price type sampled.
type BarSpecification struct {
	Step        int
	Aggregation BarAggregation
	PriceType   PriceType
}

func NewBarSpecification(step int, aggregation BarAggregation, priceType PriceType) (BarSpecification, error) {
	if step <= 0 {
		return BarSpecification{}, fmt.Errorf("invalid bar specification: step must be positive, was %d", step)
	}
	return BarSpecification{Step: step, Aggregation: aggregation, PriceType: priceType}, nil
}

func (s BarSpecification) String() string {
	return fmt.Sprintf("%d-%s-%s", s.Step, s.Aggregation, s.PriceType)
}

// TimedeltaNanos returns the bar interval in nanoseconds. Month returns zero
// because calendar months have no fixed width.
func (s BarSpecification) TimedeltaNanos() uint64 {
	const (
		msNs   = 1_000_000
		secNs  = 1_000_000_000
		minNs  = 60 * secNs
		hourNs = 60 * minNs
		dayNs  = 24 * hourNs
	)
	step := uint64(s.Step)
	switch s.Aggregation {
	case Millisecond:
		return step * msNs
	case Second:
		return step * secNs
	case Minute:
		return step * minNs
	case Hour:
		return step * hourNs
	case Day:
		return step * dayNs
	case Week:
		return step * 7 * dayNs
	case Month:
		return 0
	default:
		panic(fmt.Sprintf("aggregation %s is not time based", s.Aggregation))
	}
}

// BarType identifies a bar series. A Standard bar type aggregates directly
// from ticks; a Composite bar type aggregates from bars of another
// (instrument-identical) bar type.
type BarType struct {
	InstrumentId InstrumentId
	Spec         BarSpecification
	Source       AggregationSource

	composite bool
	// Composite underlying parameters; PriceType is shared with Spec.
	CompositeStep   int
	CompositeAgg    BarAggregation
	CompositeSource AggregationSource
}

func NewBarType(instrumentId InstrumentId, spec BarSpecification, source AggregationSource) BarType {
	return BarType{InstrumentId: instrumentId, Spec: spec, Source: source}
}

func NewCompositeBarType(
	instrumentId InstrumentId,
	spec BarSpecification,
	source AggregationSource,
	compositeStep int,
	compositeAgg BarAggregation,
	compositeSource AggregationSource,
) BarType {
	return BarType{
		InstrumentId:    instrumentId,
		Spec:            spec,
		Source:          source,
		composite:       true,
		CompositeStep:   compositeStep,
		CompositeAgg:    compositeAgg,
		CompositeSource: compositeSource,
	}
}

// IsComposite reports whether the underlying source is another bar type.
func (bt BarType) IsComposite() bool { return bt.composite }

// Standard returns the outer (standard) bar type.
func (bt BarType) Standard() BarType {
	if !bt.composite {
		return bt
	}
	return NewBarType(bt.InstrumentId, bt.Spec, bt.Source)
}

// Composite returns the underlying bar type a composite assembles from.
// For standard bar types it returns the bar type itself.
func (bt BarType) Composite() BarType {
	if !bt.composite {
		return bt
	}
	spec := BarSpecification{Step: bt.CompositeStep, Aggregation: bt.CompositeAgg, PriceType: bt.Spec.PriceType}
	return NewBarType(bt.InstrumentId, spec, bt.CompositeSource)
}

func (bt BarType) String() string {
	s := fmt.Sprintf("%s-%d-%s-%s-%s",
		bt.InstrumentId, bt.Spec.Step, bt.Spec.Aggregation, bt.Spec.PriceType, bt.Source)
	if bt.composite {
		s += fmt.Sprintf("@%d-%s-%s", bt.CompositeStep, bt.CompositeAgg, bt.CompositeSource)
	}
	return s
}

// ParseBarType parses the canonical string form
// "{instrument}-{step}-{agg}-{price_type}-{source}[@{cstep}-{cagg}-{csource}]".
// The round trip with String is lossless.
func ParseBarType(s string) (BarType, error) {
	standard, compositeStr, hasComposite := strings.Cut(s, "@")

	pieces := rsplitN(standard, "-", 5)
	if len(pieces) != 5 {
		return BarType{}, fmt.Errorf("invalid bar type %q: expected 5 dash-separated tokens", s)
	}

	instrumentId, err := ParseInstrumentId(pieces[0])
	if err != nil {
		return BarType{}, fmt.Errorf("invalid bar type %q: %w", s, err)
	}
	step, err := strconv.Atoi(pieces[1])
	if err != nil || step <= 0 {
		return BarType{}, fmt.Errorf("invalid bar type %q: bad step %q", s, pieces[1])
	}
	aggregation, err := ParseBarAggregation(pieces[2])
	if err != nil {
		return BarType{}, fmt.Errorf("invalid bar type %q: %w", s, err)
	}
	priceType, err := ParsePriceType(pieces[3])
	if err != nil {
		return BarType{}, fmt.Errorf("invalid bar type %q: %w", s, err)
	}
	source, err := ParseAggregationSource(pieces[4])
	if err != nil {
		return BarType{}, fmt.Errorf("invalid bar type %q: %w", s, err)
	}

	spec := BarSpecification{Step: step, Aggregation: aggregation, PriceType: priceType}
	if !hasComposite {
		return NewBarType(instrumentId, spec, source), nil
	}

	compositePieces := rsplitN(compositeStr, "-", 3)
	if len(compositePieces) != 3 {
		return BarType{}, fmt.Errorf("invalid bar type %q: expected 3 composite tokens", s)
	}
	compositeStep, err := strconv.Atoi(compositePieces[0])
	if err != nil || compositeStep <= 0 {
		return BarType{}, fmt.Errorf("invalid bar type %q: bad composite step %q", s, compositePieces[0])
	}
	compositeAgg, err := ParseBarAggregation(compositePieces[1])
	if err != nil {
		return BarType{}, fmt.Errorf("invalid bar type %q: %w", s, err)
	}
	compositeSource, err := ParseAggregationSource(compositePieces[2])
	if err != nil {
		return BarType{}, fmt.Errorf("invalid bar type %q: %w", s, err)
	}

	return NewCompositeBarType(instrumentId, spec, source, compositeStep, compositeAgg, compositeSource), nil
}

// rsplitN splits from the right into at most n tokens, returned in original
// order. The leftmost token keeps any remaining separators, which lets
// instrument symbols carry dashes.
func rsplitN(s, sep string, n int) []string {
	parts := make([]string, 0, n)
	rest := s
	for len(parts) < n-1 {
		idx := strings.LastIndex(rest, sep)
		if idx < 0 {
			break
		}
		parts = append(parts, rest[idx+len(sep):])
		rest = rest[:idx]
	}
	parts = append(parts, rest)
	// Reverse into original order.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return parts
}
