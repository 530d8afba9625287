package format

// Record is one buffered log entry. The offset is assigned by the source
// log and never rewritten locally.
type Record struct {
	Offset int64
	Key    []byte
	Value  []byte
}

// frameSize is the on-disk size of a record: offset, key length, key bytes,
// value length, value bytes.
func frameSize(r Record) int64 {
	return 8 + 4 + int64(len(r.Key)) + 4 + int64(len(r.Value))
}
