package ledger

import (
	"github.com/nspcc-dev/neo-go/pkg/io"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// MaxContentHashLen is the maximum length of content hash accepted by
// decoding.
const MaxContentHashLen = 1024

// Record is a content hash saved for some UDID along with its submitter.
// Zero Record is returned for UDIDs that were never saved.
type Record struct {
	Submitter   util.Uint160
	ContentHash string
}

// IsZero checks whether the record has never been saved.
func (r Record) IsZero() bool {
	return r.ContentHash == "" && r.Submitter.Equals(util.Uint160{})
}

// EncodeBinary implements io.Serializable.
func (r *Record) EncodeBinary(w *io.BinWriter) {
	w.WriteBytes(r.Submitter[:])
	w.WriteString(r.ContentHash)
}

// DecodeBinary implements io.Serializable.
func (r *Record) DecodeBinary(br *io.BinReader) {
	br.ReadBytes(r.Submitter[:])
	r.ContentHash = br.ReadString(MaxContentHashLen)
}
