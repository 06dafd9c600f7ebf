// Package tcodec encodes trust anchors into self contained records.
//
// A record is an archive of CBOR data items followed by the offset of the
// root item as a big-endian uint16:
//
//	[subject][spki][name constraints?][root][root offset (2 bytes)]
//
// Field values are written first as CBOR byte strings. The root is a CBOR
// map of the byte offsets of those fields within the archive, so the root
// begins at a computed position and the trailing offset is needed to find
// it again.
package tcodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"

	"github.com/kardianos/qtrust/tdef"
)

// MaxArchive is the largest archive the 16-bit root offset can describe.
const MaxArchive = math.MaxUint16

var (
	// ErrCorrupt is returned when a record cannot be decoded.
	ErrCorrupt = errors.New("qtrust: corrupt record")

	// ErrSizeLimit matches any SizeLimitError.
	ErrSizeLimit = errors.New("qtrust: record size limit exceeded")
)

// SizeLimitError is returned when an anchor's archive is too large to address.
type SizeLimitError struct {
	Size int
}

func (e SizeLimitError) Error() string {
	return fmt.Sprintf("qtrust: record archive is %d bytes, limit is %d", e.Size, MaxArchive)
}

func (e SizeLimitError) Is(target error) bool {
	return target == ErrSizeLimit
}

// root locates each field within the archive.
type root struct {
	Subject         uint64  `cbor:"1,keyasint"`
	SPKI            uint64  `cbor:"2,keyasint"`
	NameConstraints *uint64 `cbor:"3,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode serializes ta into a record.
func Encode(ta tdef.TrustAnchor) ([]byte, error) {
	var (
		buf []byte
		r   root
	)
	appendBytes := func(field []byte) (uint64, error) {
		off := uint64(len(buf))
		if field == nil {
			field = []byte{}
		}
		item, err := encMode.Marshal(field)
		if err != nil {
			return 0, err
		}
		buf = append(buf, item...)
		return off, nil
	}

	var err error
	if r.Subject, err = appendBytes(ta.Subject); err != nil {
		return nil, fmt.Errorf("encode subject: %w", err)
	}
	if r.SPKI, err = appendBytes(ta.SPKI); err != nil {
		return nil, fmt.Errorf("encode spki: %w", err)
	}
	if ta.NameConstraints != nil {
		off, err := appendBytes(ta.NameConstraints)
		if err != nil {
			return nil, fmt.Errorf("encode name constraints: %w", err)
		}
		r.NameConstraints = &off
	}

	pos := len(buf)
	item, err := encMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode root: %w", err)
	}
	buf = append(buf, item...)
	if len(buf) > MaxArchive {
		return nil, SizeLimitError{Size: len(buf)}
	}
	return binary.BigEndian.AppendUint16(buf, uint16(pos)), nil
}

// Decode reconstructs a trust anchor from a record made by Encode.
func Decode(data []byte) (tdef.TrustAnchor, error) {
	if len(data) < 2 {
		return tdef.TrustAnchor{}, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}
	archive := data[:len(data)-2]
	pos := int(binary.BigEndian.Uint16(data[len(data)-2:]))
	if pos >= len(archive) {
		return tdef.TrustAnchor{}, fmt.Errorf("%w: root offset %d beyond archive of %d bytes", ErrCorrupt, pos, len(archive))
	}

	var r root
	rest, err := decMode.UnmarshalFirst(archive[pos:], &r)
	if err != nil {
		return tdef.TrustAnchor{}, fmt.Errorf("%w: root: %v", ErrCorrupt, err)
	}
	if len(rest) != 0 {
		return tdef.TrustAnchor{}, fmt.Errorf("%w: %d bytes after root", ErrCorrupt, len(rest))
	}

	field := func(name string, off uint64) ([]byte, error) {
		if off >= uint64(pos) {
			return nil, fmt.Errorf("%w: %s offset %d not before root at %d", ErrCorrupt, name, off, pos)
		}
		var v []byte
		if _, err := decMode.UnmarshalFirst(archive[off:pos], &v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
		}
		if v == nil {
			v = []byte{}
		}
		return v, nil
	}

	var ta tdef.TrustAnchor
	if ta.Subject, err = field("subject", r.Subject); err != nil {
		return tdef.TrustAnchor{}, err
	}
	if ta.SPKI, err = field("spki", r.SPKI); err != nil {
		return tdef.TrustAnchor{}, err
	}
	if r.NameConstraints != nil {
		if ta.NameConstraints, err = field("name constraints", *r.NameConstraints); err != nil {
			return tdef.TrustAnchor{}, err
		}
	}
	return ta, nil
}
