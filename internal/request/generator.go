package request

import "math/rand/v2"

// RangeOneIn はレンジ検索の発生頻度（1/RangeOneIn）
const RangeOneIn = 100

// Generator はワーカーごとのリクエスト生成器
type Generator struct {
	rng     *rand.Rand
	numKeys uint64
}

// NewGenerator は新しい生成器を作成する
// numKeys は 1 以上であること
func NewGenerator(numKeys uint64, seed1, seed2 uint64) *Generator {
	if numKeys == 0 {
		panic("request: numKeys must be positive")
	}
	return &Generator{
		rng:     rand.New(rand.NewPCG(seed1, seed2)),
		numKeys: numKeys,
	}
}

// NumKeys はキー空間のサイズを返す
func (g *Generator) NumKeys() uint64 {
	return g.numKeys
}

// Next は次のリクエストを生成する
// 1/100 の確率でキー空間全体を対象とするレンジ検索、それ以外はポイント検索。
func (g *Generator) Next() Request {
	if g.rng.Uint32()%RangeOneIn == 0 {
		return Range(g.rng.Uint64N(g.numKeys), g.numKeys)
	}
	return Point(g.rng.Uint64N(g.numKeys))
}
