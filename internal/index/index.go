package index

import (
	"errors"
	"sync/atomic"

	"github.com/google/btree"
)

// degree はB木の次数
const degree = 32

// ErrSealed は封印済みのインデックスへの書き込みで返される
var ErrSealed = errors.New("index: sealed")

// Reader は読み取り専用の検索操作を定義するインターフェース
type Reader interface {
	Get(key uint64) (uint64, bool)
	Scan(start, count uint64, fn func(key, value uint64) bool) int
	Len() int
}

// Ensure Index implements Reader
var _ Reader = (*Index)(nil)

type entry struct {
	key   uint64
	value uint64
}

func lessEntry(a, b entry) bool {
	return a.key < b.key
}

// Index は順序付きKVインデックス
type Index struct {
	tree   *btree.BTreeG[entry]
	sealed atomic.Bool
}

// New は空のインデックスを作成する
func New() *Index {
	return &Index{
		tree: btree.NewG(degree, lessEntry),
	}
}

// Put はキーに値を設定する（起動時のみ、単一ゴルーチンから）
func (x *Index) Put(key, value uint64) error {
	if x.sealed.Load() {
		return ErrSealed
	}
	x.tree.ReplaceOrInsert(entry{key: key, value: value})
	return nil
}

// Populate はキー 0..n-1 を値=キーとして投入する
func (x *Index) Populate(n uint64) error {
	for k := range n {
		if err := x.Put(k, k); err != nil {
			return err
		}
	}
	return nil
}

// Seal は以降の書き込みを禁止する
func (x *Index) Seal() {
	x.sealed.Store(true)
}

// Sealed は封印済みかどうかを返す
func (x *Index) Sealed() bool {
	return x.sealed.Load()
}

// Get はキーに対応する値を取得する
func (x *Index) Get(key uint64) (uint64, bool) {
	e, ok := x.tree.Get(entry{key: key})
	if !ok {
		return 0, false
	}
	return e.value, true
}

// Scan は start 以上のキーを昇順に最大 count 件走査し、走査件数を返す
// fn が false を返すと走査を打ち切る（その要素は件数に含む）。
func (x *Index) Scan(start, count uint64, fn func(key, value uint64) bool) int {
	if count == 0 {
		return 0
	}

	var visited uint64
	x.tree.AscendGreaterOrEqual(entry{key: start}, func(e entry) bool {
		visited++
		if fn != nil && !fn(e.key, e.value) {
			return false
		}
		return visited < count
	})
	return int(visited)
}

// Len はエントリ数を返す
func (x *Index) Len() int {
	return x.tree.Len()
}
