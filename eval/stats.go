package eval

import "math"

// mean 算术平均，空切片返回 0
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStd 样本标准差（n-1），样本数不足返回 0
func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// cohensD 合并标准差版本的效应量。
// 两组方差同时为零时返回 0，避免除零。
func cohensD(deltaMean, aStd, bStd float64) float64 {
	pooled := math.Sqrt((aStd*aStd + bStd*bStd) / 2)
	if pooled == 0 {
		return 0
	}
	return deltaMean / pooled
}
