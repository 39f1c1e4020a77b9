package postprocess

import "github.com/wastesense/edge-ml/images"

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// IoUThreshold is the overlap above which a lower-confidence box is
	// suppressed.
	IoUThreshold float32
	// ClassAware restricts suppression to candidates of the same
	// category. Off by default: the pipeline suppresses globally.
	ClassAware bool
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Arguments:
//   - candidates: Slice of candidates sorted by descending confidence.
//     Equal-confidence candidates keep their relative order, so the
//     result is stable for ties.
//   - config: NMS configuration.
//
// Returns:
//   - Filtered slice, still in descending-confidence order. Running
//     the function again on its own output is a no-op.
func ApplyGreedyNMS(candidates []Candidate, config *NMSConfig) []Candidate {
	n := len(candidates)
	if n == 0 {
		return nil
	}

	filtered := make([]Candidate, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := candidates[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.Category != candidates[j].Category {
				continue
			}
			if images.CalculateIoU(anchor.Box, candidates[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
