package arena

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/keybase/go-codec/codec"
)

// Node is one stored treap node. Children are uint64 indices into the same
// table; 0 means no child. Index 0 is never allocated.
type Node struct {
	Key        fr.Element
	Priority   fr.Element
	MerkleHash fr.Element
	LeftIndex  uint64
	RightIndex uint64
}

// Nodes serialize as consecutive msgpack values (no array header): the
// canonical 32-byte field encodings followed by the two child indices.
var _ codec.Selfer = (*Node)(nil)

func (n *Node) CodecEncodeSelf(e *codec.Encoder) {
	kb := n.Key.Bytes()
	e.MustEncode(kb[:])
	pb := n.Priority.Bytes()
	e.MustEncode(pb[:])
	hb := n.MerkleHash.Bytes()
	e.MustEncode(hb[:])
	e.MustEncode(n.LeftIndex)
	e.MustEncode(n.RightIndex)
}

func (n *Node) CodecDecodeSelf(d *codec.Decoder) {
	var buf []byte
	d.MustDecode(&buf)
	n.Key.SetBytes(buf)
	buf = buf[:0]
	d.MustDecode(&buf)
	n.Priority.SetBytes(buf)
	buf = buf[:0]
	d.MustDecode(&buf)
	n.MerkleHash.SetBytes(buf)
	d.MustDecode(&n.LeftIndex)
	d.MustDecode(&n.RightIndex)
}
