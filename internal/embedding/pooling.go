package embedding

// MeanPool averages token embeddings over the positions marked in the
// attention mask. hidden is the flattened (tokens, dims) output of the model;
// positions with a zero mask (padding) are excluded from the average.
func MeanPool(hidden []float32, mask []int64, dims int) []float32 {
	pooled := make([]float32, dims)
	var count float32
	for i := range mask {
		if mask[i] == 0 {
			continue
		}
		base := i * dims
		if base+dims > len(hidden) {
			break
		}
		for j := 0; j < dims; j++ {
			pooled[j] += hidden[base+j]
		}
		count++
	}
	if count > 0 {
		for j := range pooled {
			pooled[j] /= count
		}
	}
	return pooled
}
