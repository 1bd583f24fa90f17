package pipeline

import (
	"go.uber.org/zap"

	"github.com/edge-vision/go-detect/common"
	"github.com/edge-vision/go-detect/images"
	"github.com/edge-vision/go-detect/inference"
)

// Decode maps suppression-selected rows back into original-image pixel
// space.
//
// For each selection the center-form model-space box is converted to corner
// form, pushed through the inverse letterbox transform per axis, clamped to
// the source image rectangle, and paired with its class label and score.
// Output order matches the selection order (descending score).
//
// A class index outside the label table drops only the offending entry;
// decoding continues. Entries below the score floor are discarded.
func Decode(
	raw inference.Tensor,
	selections []inference.Selection,
	tr images.Transform,
	cfg Config,
	log *zap.Logger,
) []common.Detection {
	if log == nil {
		log = zap.NewNop()
	}

	detections := make([]common.Detection, 0, len(selections))
	rows := raw.Rows()
	for _, sel := range selections {
		if sel.Index < 0 || sel.Index >= rows {
			log.Warn("dropping detection with out-of-range row index",
				zap.Int("index", sel.Index),
				zap.Int("rows", rows))
			continue
		}
		if sel.Score < cfg.ScoreThreshold {
			continue
		}
		if sel.Class < 0 || sel.Class >= len(cfg.ClassLabels) {
			err := &LabelIndexError{Index: sel.Class, Labels: len(cfg.ClassLabels)}
			log.Warn("dropping detection with unknown class", zap.Error(err))
			continue
		}

		row := raw.Row(sel.Index)
		cx, cy := float64(row[0]), float64(row[1])
		w, h := float64(row[2]), float64(row[3])

		x1, y1 := tr.Invert(cx-w/2, cy-h/2)
		x2, y2 := tr.Invert(cx+w/2, cy+h/2)

		box := common.Box{
			X1: float32(x1), Y1: float32(y1),
			X2: float32(x2), Y2: float32(y2),
		}.Clamp(float32(tr.SrcWidth), float32(tr.SrcHeight))

		detections = append(detections, common.Detection{
			Label: cfg.ClassLabels[sel.Class],
			Score: sel.Score,
			Box:   box,
		})
	}
	return detections
}
