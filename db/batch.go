package db

// WriteBatch groups a set of Put/Delete mutations so they apply to the
// database atomically: either every mutation in the batch becomes visible
// together, or — if the write fails — none of them do. It buffers the
// mutations client-side; nothing is written until the batch is passed to
// DB.Write.
type WriteBatch interface {
	Put(key, value []byte)
	Delete(key []byte)
}
