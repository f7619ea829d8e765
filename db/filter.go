package db

// FilterPolicy builds and probes a per-table filter (typically a Bloom
// filter) over user keys, stored in a table's filter block and consulted
// before opening a data block on a point lookup.
type FilterPolicy interface {
	Name() string
	AppendFilter(keys [][]byte, dst []byte) []byte
	MightContain(key, filter []byte) bool
}
