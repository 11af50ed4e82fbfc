package merkle

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/keybase/go-codec/codec"
	"github.com/pkg/errors"
)

// Proofs travel as canonical msgpack. Every field element is its 32-byte
// big-endian canonical encoding; the direction word is a big-endian byte
// string; the sibling count is an explicit uint32 so decoders can validate
// the flat sequence without trusting slice framing.

var _ codec.Selfer = (*Proof)(nil)

func (p *Proof) CodecEncodeSelf(e *codec.Encoder) {
	rb := p.Root.Bytes()
	e.MustEncode(rb[:])
	e.MustEncode(p.Existence)
	kb := p.Key.Bytes()
	e.MustEncode(kb[:])
	nb := p.NonExistenceKey.Bytes()
	e.MustEncode(nb[:])
	if p.DirectionBits == nil {
		e.MustEncode([]byte(nil))
	} else {
		e.MustEncode(p.DirectionBits.Bytes())
	}
	e.MustEncode(p.SiblingsLength)
	for i := range p.Siblings {
		sb := p.Siblings[i].Bytes()
		e.MustEncode(sb[:])
	}
}

func (p *Proof) CodecDecodeSelf(d *codec.Decoder) {
	var buf []byte
	d.MustDecode(&buf)
	p.Root.SetBytes(buf)
	d.MustDecode(&p.Existence)
	buf = buf[:0]
	d.MustDecode(&buf)
	p.Key.SetBytes(buf)
	buf = buf[:0]
	d.MustDecode(&buf)
	p.NonExistenceKey.SetBytes(buf)
	buf = buf[:0]
	d.MustDecode(&buf)
	p.DirectionBits = new(big.Int).SetBytes(buf)
	d.MustDecode(&p.SiblingsLength)
	p.Siblings = make([]fr.Element, p.SiblingsLength)
	for i := range p.Siblings {
		buf = buf[:0]
		d.MustDecode(&buf)
		p.Siblings[i].SetBytes(buf)
	}
}

func codecHandle() *codec.MsgpackHandle {
	var mh codec.MsgpackHandle
	mh.WriteExt = true
	mh.Canonical = true
	return &mh
}

// EncodeProof serializes p to its wire form.
func EncodeProof(p *Proof) ([]byte, error) {
	var buf []byte
	err := codec.NewEncoderBytes(&buf, codecHandle()).Encode(p)
	if err != nil {
		return nil, errors.Wrap(err, "encoding proof")
	}
	return buf, nil
}

// DecodeProof parses a wire-form proof.
func DecodeProof(b []byte) (*Proof, error) {
	var p Proof
	err := codec.NewDecoderBytes(b, codecHandle()).Decode(&p)
	if err != nil {
		return nil, errors.Wrap(err, "decoding proof")
	}
	return &p, nil
}
