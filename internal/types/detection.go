package types

// Detection is one labeled, confidence-scored box returned by the detector.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// CloneDetections copies a detection list.
func CloneDetections(in []Detection) []Detection {
	if in == nil {
		return nil
	}
	out := make([]Detection, len(in))
	copy(out, in)
	return out
}
