// Package index provides the ordered key-value index served by the benchmark server.
//
// The Index is a B-tree of uint64 keys and values. It follows a two-phase
// lifecycle: it is populated by a single goroutine at startup, then sealed,
// after which it only serves reads.
//
// # Basic Usage
//
//	idx := index.New()
//	if err := idx.Populate(1_000_000); err != nil {
//	    log.Fatal(err)
//	}
//	idx.Seal()
//
//	v, ok := idx.Get(42)
//	n := idx.Scan(100, 10, func(k, v uint64) bool { return true })
//
// # Thread Safety
//
// Put is not safe for concurrent use and fails once the index is sealed.
// Get and Scan are safe for any number of concurrent readers after Seal.
package index
