package histogram

import "math"

const (
	exactLimit = 1000
	decadeBins = 900

	// 値域ごとのビン開始位置
	tensBase      = exactLimit
	hundredsBase  = tensBase + decadeBins
	thousandsBase = hundredsBase + decadeBins
	overflowIdx   = thousandsBase + decadeBins

	numBins = overflowIdx + 1

	// OverflowThreshold 以上の値はオーバーフロービンに入る
	OverflowThreshold = 1_000_000
)

// Histogram は固定精度のレイテンシヒストグラム
type Histogram struct {
	bins  [numBins]uint64
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// New は空のヒストグラムを作成する
func New() *Histogram {
	h := &Histogram{}
	h.Reset()
	return h
}

// binIndex は値に対応するビン番号を返す
func binIndex(v uint64) int {
	switch {
	case v < exactLimit:
		return int(v)
	case v < 10_000:
		return tensBase + int((v-exactLimit)/10)
	case v < 100_000:
		return hundredsBase + int((v-10_000)/100)
	case v < OverflowThreshold:
		return thousandsBase + int((v-100_000)/1000)
	default:
		return overflowIdx
	}
}

// binValue はビンの代表値（下限）を返す
func binValue(idx int) uint64 {
	switch {
	case idx < tensBase:
		return uint64(idx)
	case idx < hundredsBase:
		return exactLimit + uint64(idx-tensBase)*10
	case idx < thousandsBase:
		return 10_000 + uint64(idx-hundredsBase)*100
	default:
		return 100_000 + uint64(idx-thousandsBase)*1000
	}
}

// Record は値を1件記録する
func (h *Histogram) Record(v uint64) {
	h.bins[binIndex(v)]++
	h.count++
	h.sum += v
	if v < h.min {
		h.min = v
	}
	if v > h.max {
		h.max = v
	}
}

// Count は記録件数を返す
func (h *Histogram) Count() uint64 {
	return h.count
}

// Min は最小値を返す（空の場合は false）
func (h *Histogram) Min() (uint64, bool) {
	if h.count == 0 {
		return 0, false
	}
	return h.min, true
}

// Max は最大値を返す（空の場合は false）
func (h *Histogram) Max() (uint64, bool) {
	if h.count == 0 {
		return 0, false
	}
	return h.max, true
}

// Avg は平均値を返す（空の場合は false）
func (h *Histogram) Avg() (float64, bool) {
	if h.count == 0 {
		return 0, false
	}
	return float64(h.sum) / float64(h.count), true
}

// Perc はパーセンタイル値を返す
// p は 0.0〜1.0。累積件数が p*Count を超えた最初のビンの代表値を返す。
// 空の場合は (0, false)。
func (h *Histogram) Perc(p float64) (uint64, bool) {
	if h.count == 0 || math.IsNaN(p) {
		return 0, false
	}

	target := p * float64(h.count)
	var seen uint64
	for idx := 0; idx < overflowIdx; idx++ {
		c := h.bins[idx]
		if c == 0 {
			continue
		}
		seen += c
		if float64(seen) > target {
			return binValue(idx), true
		}
	}
	return h.max, true
}

// Reset は全てのビンをクリアする
func (h *Histogram) Reset() {
	clear(h.bins[:])
	h.count = 0
	h.sum = 0
	h.min = math.MaxUint64
	h.max = 0
}
