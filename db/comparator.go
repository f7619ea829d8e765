package db

// Comparator defines a total order over user keys. The name must be stable
// across runs: changing a comparator's name after a database has been
// created with it, or supplying a different comparator under the same name,
// produces undefined ordering.
//
// Names starting with "lsm." are reserved for built-in comparators and
// must not be used by client-supplied implementations.
type Comparator interface {
	Compare(a, b []byte) int
	Name() string

	// FindShortestSeparator may shorten *start to any value in [start, limit)
	// for use as a block-index separator key. Leaving *start unchanged is
	// always correct.
	FindShortestSeparator(start *[]byte, limit []byte)

	// FindShortSuccessor may shorten *key to any value >= the original key,
	// for use as the index key following the last block of a table.
	// Leaving *key unchanged is always correct.
	FindShortSuccessor(key *[]byte)
}
