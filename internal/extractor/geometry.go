package extractor

// CornersToXYWH converts an [x1, y1, x2, y2] box to [x, y, w, h].
func CornersToXYWH(b []float64) [4]float64 {
	return [4]float64{b[0], b[1], b[2] - b[0], b[3] - b[1]}
}

// ComputeIoU calculates Intersection over Union between two [x, y, w, h] boxes.
func ComputeIoU(a, b [4]float64) float64 {
	x1 := max(a[0], b[0])
	y1 := max(a[1], b[1])
	x2 := min(a[0]+a[2], b[0]+b[2])
	y2 := min(a[1]+a[3], b[1]+b[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a[2]*a[3] + b[2]*b[3] - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}
