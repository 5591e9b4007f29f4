package coordinator

import (
	"fmt"

	"github.com/ayusman/drishti/internal/detector"
)

// Decision describes how a frame was served.
type Decision int

const (
	// Unsupported means no detector is loaded.
	Unsupported Decision = iota
	// RanInference means the detector ran on this frame.
	RanInference
	// SkippedReusedCache means the frame was throttled and the cached batch was returned.
	SkippedReusedCache
	// SkippedEmpty means the frame was throttled and there was nothing cached.
	SkippedEmpty
)

func (d Decision) String() string {
	switch d {
	case Unsupported:
		return "unsupported"
	case RanInference:
		return "ran_inference"
	case SkippedReusedCache:
		return "skipped_reused_cache"
	case SkippedEmpty:
		return "skipped_empty"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// MarshalText encodes the decision by name.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a decision name as produced by MarshalText.
func (d *Decision) UnmarshalText(text []byte) error {
	for c := Unsupported; c <= SkippedEmpty; c++ {
		if c.String() == string(text) {
			*d = c
			return nil
		}
	}
	return fmt.Errorf("unknown decision %q", text)
}

// Result is the outcome of one DetectOrReuse call. Objects is owned by the
// caller.
type Result struct {
	Decision Decision
	Objects  detector.Batch
}
