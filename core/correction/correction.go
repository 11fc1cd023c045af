// Package correction implements CorrectionStage: the DC-offset and
// I/Q-imbalance estimator/corrector pair that the engine applies to
// each drained span before dispatching it to sinks (spec §4.3).
package correction

import "github.com/ftl/dspengine/core/ring"

// neutralRange is the initial I/Q peak-to-peak estimate, 2^16.
const neutralRange = 1 << 16

// neutralImbalance is the initial Q15.16 imbalance ratio, 1.0.
const neutralImbalance = 1 << 16

// State carries the running estimates between invocations of Apply.
// The zero value is not valid; use NewState.
type State struct {
	IOffset, QOffset int
	IRange, QRange   int
	Imbalance        int32 // Q15.16 fixed point
}

// NewState returns a State with all estimates at their neutral values.
func NewState() State {
	return State{
		IRange:    neutralRange,
		QRange:    neutralRange,
		Imbalance: neutralImbalance,
	}
}

// Reset restores the DC-offset estimates to their neutral value (0).
// Called whenever DC correction transitions off->on.
func (s *State) Reset() {
	s.IOffset = 0
	s.QOffset = 0
}

// ResetImbalance restores the I/Q-imbalance estimates to their neutral
// values. Called whenever imbalance correction transitions off->on.
func (s *State) ResetImbalance() {
	s.IRange = neutralRange
	s.QRange = neutralRange
	s.Imbalance = neutralImbalance
}

// ApplyDC removes the running DC bias from span in place and updates
// the running offset estimate with a first-order IIR (weight 3/4 on
// the prior estimate). The division by 4 rounds to the nearest integer
// (halves away from zero), so the estimate settles within 1 of the
// input mean from either side.
func ApplyDC(s *State, span ring.Span) {
	n := len(span)
	if n == 0 {
		return
	}

	var io, qo int
	for _, sample := range span {
		io += int(sample.I)
		qo += int(sample.Q)
	}

	quarter := func(v int) int {
		if v < 0 {
			return -((-v + 2) >> 2)
		}
		return (v + 2) >> 2
	}
	s.IOffset = quarter(3*s.IOffset + io/n)
	s.QOffset = quarter(3*s.QOffset + qo/n)

	for i := range span {
		span[i].I -= int16(s.IOffset)
		span[i].Q -= int16(s.QOffset)
	}
}

// ApplyImbalance corrects the I/Q gain mismatch in span in place and
// updates the running range/imbalance estimates with a first-order IIR
// (weight 15/16 on the prior estimate). Only the Q component is
// scaled; I is left untouched.
func ApplyImbalance(s *State, span ring.Span) {
	if len(span) == 0 {
		return
	}

	iMin, iMax := int(span[0].I), int(span[0].I)
	qMin, qMax := int(span[0].Q), int(span[0].Q)
	for _, sample := range span[1:] {
		i, q := int(sample.I), int(sample.Q)
		if i < iMin {
			iMin = i
		} else if i > iMax {
			iMax = i
		}
		if q < qMin {
			qMin = q
		} else if q > qMax {
			qMax = q
		}
	}

	s.IRange = (15*s.IRange + (iMax - iMin)) >> 4
	s.QRange = (15*s.QRange + (qMax - qMin)) >> 4

	if s.QRange != 0 {
		s.Imbalance = int32((int64(s.IRange) << 16) / int64(s.QRange))
	}

	for i := range span {
		span[i].Q = int16((int64(span[i].Q) * int64(s.Imbalance)) >> 16)
	}
}

// Apply runs DC correction (if dc) then imbalance correction (if iq),
// in that order, exactly as spec §4.3 requires.
func Apply(s *State, span ring.Span, dc, iq bool) {
	if dc {
		ApplyDC(s, span)
	}
	if iq {
		ApplyImbalance(s, span)
	}
}
