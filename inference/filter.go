package inference

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/edge-vision/go-detect/common"
)

// Selection is one raw detector row kept by non-maximum suppression.
type Selection struct {
	// Index is the row index into the raw detector output.
	Index int
	// Class is the winning class index for that row.
	Class int
	// Score is the winning class score.
	Score float32
}

// FilterConfig carries the thresholds the suppression stage applies.
type FilterConfig struct {
	// TopK caps the number of selections returned.
	TopK int
	// IoUThreshold is the overlap above which a candidate is suppressed.
	IoUThreshold float32
	// ScoreThreshold excludes candidates whose best class score is below it.
	ScoreThreshold float32
}

// BoxFilter reduces raw detector rows to an ordered set of at most TopK
// non-overlapping selections, sorted by descending score. Ties keep the
// lower original row index first so identical inputs yield identical
// output.
//
// The two implementations - a second network via ModelFilter, or the
// in-process GreedyFilter - are interchangeable behind this interface.
type BoxFilter interface {
	Filter(ctx context.Context, raw Tensor, cfg FilterConfig) ([]Selection, error)
}

// rowBox converts a raw row's center-form box to corner form.
func rowBox(row []float32) common.Box {
	cx, cy, w, h := row[0], row[1], row[2], row[3]
	return common.Box{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}

// bestClass returns the winning class index and score of a raw row.
func bestClass(row []float32) (int, float32) {
	class := 0
	score := row[4]
	for c := 5; c < len(row); c++ {
		if row[c] > score {
			score = row[c]
			class = c - 4
		}
	}
	return class, score
}

// GreedyFilter performs greedy non-maximum suppression in process. It is a
// drop-in replacement for a dedicated NMS network.
type GreedyFilter struct{}

// Filter implements BoxFilter.
//
// Candidates below ScoreThreshold are excluded before sorting. The
// remainder is sorted by best class score descending (stable, so ties keep
// the lower row index), then each candidate is kept only if its IoU with
// every already-kept box is below IoUThreshold, stopping once TopK boxes
// are kept.
func (GreedyFilter) Filter(ctx context.Context, raw Tensor, cfg FilterConfig) ([]Selection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(raw.Shape) != 2 || raw.Shape[1] < 5 {
		return nil, errors.Errorf("greedy filter expects [rows, 4+classes] input, got shape %v", raw.Shape)
	}

	rows := raw.Rows()
	candidates := make([]Selection, 0, rows)
	for i := 0; i < rows; i++ {
		class, score := bestClass(raw.Row(i))
		if score < cfg.ScoreThreshold {
			continue
		}
		candidates = append(candidates, Selection{Index: i, Class: class, Score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	kept := make([]Selection, 0, cfg.TopK)
	keptBoxes := make([]common.Box, 0, cfg.TopK)
	for _, cand := range candidates {
		if cfg.TopK > 0 && len(kept) >= cfg.TopK {
			break
		}
		box := rowBox(raw.Row(cand.Index))
		overlaps := false
		for _, kb := range keptBoxes {
			if box.IoU(kb) >= cfg.IoUThreshold {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		kept = append(kept, cand)
		keptBoxes = append(keptBoxes, box)
	}
	return kept, nil
}

// ModelFilterOptions names the tensors of an NMS network.
type ModelFilterOptions struct {
	// BoxesInput receives the raw detector rows.
	BoxesInput string
	// TopKInput, IoUInput, and ScoreInput receive the scalar thresholds.
	TopKInput  string
	IoUInput   string
	ScoreInput string
	// SelectedOutput yields the kept row indices, ordered by descending
	// score.
	SelectedOutput string
}

// DefaultModelFilterOptions returns the conventional NMS tensor names.
func DefaultModelFilterOptions() ModelFilterOptions {
	return ModelFilterOptions{
		BoxesInput:     "boxes",
		TopKInput:      "topk",
		IoUInput:       "iou_threshold",
		ScoreInput:     "score_threshold",
		SelectedOutput: "selected_indices",
	}
}

// ModelFilter delegates non-maximum suppression to a dedicated network.
// The network receives the raw rows plus the scalar thresholds and returns
// the kept row indices; class and score are read back from the raw rows.
type ModelFilter struct {
	model Model
	opts  ModelFilterOptions
}

// NewModelFilter wraps an already-loaded NMS model handle.
func NewModelFilter(model Model, opts ModelFilterOptions) *ModelFilter {
	return &ModelFilter{model: model, opts: opts}
}

// Filter implements BoxFilter.
func (f *ModelFilter) Filter(ctx context.Context, raw Tensor, cfg FilterConfig) ([]Selection, error) {
	if f == nil || f.model == nil {
		return nil, &ModelLoadError{Stage: "nms"}
	}
	if len(raw.Shape) != 2 || raw.Shape[1] < 5 {
		return nil, errors.Errorf("model filter expects [rows, 4+classes] input, got shape %v", raw.Shape)
	}

	outputs, err := f.model.Run(ctx, map[string]Tensor{
		f.opts.BoxesInput: raw,
		f.opts.TopKInput:  Scalar(float32(cfg.TopK)),
		f.opts.IoUInput:   Scalar(cfg.IoUThreshold),
		f.opts.ScoreInput: Scalar(cfg.ScoreThreshold),
	})
	if err != nil {
		return nil, err
	}

	selected, ok := outputs[f.opts.SelectedOutput]
	if !ok {
		return nil, errors.Errorf("nms model returned no %q output", f.opts.SelectedOutput)
	}

	rows := raw.Rows()
	selections := make([]Selection, 0, len(selected.Data))
	for _, v := range selected.Data {
		idx := int(v)
		if idx < 0 || idx >= rows {
			return nil, errors.Errorf("nms model selected out-of-range row %d of %d", idx, rows)
		}
		class, score := bestClass(raw.Row(idx))
		selections = append(selections, Selection{Index: idx, Class: class, Score: score})
	}
	if cfg.TopK > 0 && len(selections) > cfg.TopK {
		selections = selections[:cfg.TopK]
	}
	return selections, nil
}
