package learning

import (
	"time"

	"github.com/phrazzld/aves-annotator/internal/domain"
)

// Fold applies one valid event to p in place. The caller owns p and has
// already validated e.
func Fold(p *domain.Pattern, e *domain.FeedbackEvent, params Params, now time.Time) {
	if p.RejectionReasons == nil {
		p.RejectionReasons = make(map[string]int)
	}

	switch e.Action {
	case domain.ActionApprove:
		p.Confidence = domain.ClampUnit(p.Confidence + params.ApprovalIncrement)
		foldDelta(p, domain.BoxDelta{}, params.ObservationWeight)
		p.ApprovalCount++

	case domain.ActionReject:
		p.Confidence = domain.ClampUnit(p.Confidence - params.RejectionDecrement)
		p.RejectionReasons[e.RejectionReason]++
		if p.LastRejectionAt == nil || !e.CreatedAt.Before(*p.LastRejectionAt) {
			at := e.CreatedAt
			p.LastRejectionAt = &at
			p.LastRejectionReason = e.RejectionReason
		}
		p.RejectionCount++

	case domain.ActionCorrect:
		foldDelta(p, e.Delta(), params.CorrectionWeight)
		p.CorrectionCount++
	}

	p.SampleCount++
	p.UpdatedAt = now
}

// foldDelta merges x with weight w into the running weighted mean:
// mean += w/(W+w) * (x - mean).
func foldDelta(p *domain.Pattern, x domain.BoxDelta, w float64) {
	total := p.TotalWeight + w
	if total <= 0 {
		return
	}
	k := w / total
	p.MeanDelta = domain.BoxDelta{
		DX: p.MeanDelta.DX + k*(x.DX-p.MeanDelta.DX),
		DY: p.MeanDelta.DY + k*(x.DY-p.MeanDelta.DY),
		DW: p.MeanDelta.DW + k*(x.DW-p.MeanDelta.DW),
		DH: p.MeanDelta.DH + k*(x.DH-p.MeanDelta.DH),
	}
	p.TotalWeight = total
}
