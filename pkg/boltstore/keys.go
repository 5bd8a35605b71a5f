package boltstore

import "encoding/binary"

// Bucket name constants for bbolt storage.
var (
	bucketMeta   = []byte("meta")
	bucketMacros = []byte("macros")
	bucketVars   = []byte("vars")
	bucketHooks  = []byte("hooks")
	bucketKeys   = []byte("keys")
)

// stateBuckets are replaced wholesale by Save.
var stateBuckets = [][]byte{bucketMacros, bucketVars, bucketHooks, bucketKeys}

// Meta key constants.
var (
	keySchema  = []byte("schema")
	keySavedAt = []byte("savedat")
)

// schemaVersion is bumped when the bucket layout changes.
const schemaVersion = 1

// seqToKey converts a table position to an 8-byte big-endian key so
// ForEach returns macros in table order.
func seqToKey(n int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

// keyToInt converts an 8-byte big-endian key back to an int.
func keyToInt(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}
