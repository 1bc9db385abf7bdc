package archive

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the row-group compression.
type Codec uint8

const (
	CodecNone Codec = 0
	CodecLZ4  Codec = 1
	CodecZSTD Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Codec(%d)", uint8(c))
	}
}

// ParseCodec parses "none", "lz4" or "zstd".
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "none":
		return CodecNone, nil
	case "lz4", "":
		return CodecLZ4, nil
	case "zstd":
		return CodecZSTD, nil
	default:
		return 0, fmt.Errorf("archive: unknown codec %q", s)
	}
}

var (
	zstdEncoders sync.Pool
	zstdDecoders sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoders.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoders.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// blockHeaderSize precedes every stored block:
// [raw length uint32][compressed length uint32], compressed length 0 = raw.
const blockHeaderSize = 8

// encodeBlock compresses raw with codec. Blocks that do not shrink below
// 90% of their size are stored raw.
func encodeBlock(raw []byte, codec Codec) ([]byte, error) {
	var compressed []byte

	switch codec {
	case CodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case CodecZSTD:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, err
		}
		compressed = enc.EncodeAll(raw, nil)
		zstdEncoders.Put(enc)
	case CodecNone:
	default:
		return nil, fmt.Errorf("archive: unknown codec %d", codec)
	}

	if len(compressed) == 0 || float64(len(compressed)) > 0.9*float64(len(raw)) {
		out := make([]byte, blockHeaderSize+len(raw))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(raw)))
		copy(out[blockHeaderSize:], raw)
		return out, nil
	}

	out := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], compressed)
	return out, nil
}

func decodeBlock(stored []byte, codec Codec) ([]byte, error) {
	if len(stored) < blockHeaderSize {
		return nil, fmt.Errorf("%w: short block", ErrCorrupt)
	}

	rawLen := binary.LittleEndian.Uint32(stored[0:])
	compLen := binary.LittleEndian.Uint32(stored[4:])
	body := stored[blockHeaderSize:]

	if compLen == 0 {
		if uint32(len(body)) != rawLen {
			return nil, fmt.Errorf("%w: raw block length", ErrCorrupt)
		}
		return body, nil
	}
	if uint32(len(body)) != compLen {
		return nil, fmt.Errorf("%w: compressed block length", ErrCorrupt)
	}

	raw := make([]byte, rawLen)
	switch codec {
	case CodecLZ4:
		n, err := lz4.UncompressBlock(body, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		raw = raw[:n]
	case CodecZSTD:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		raw, err = dec.DecodeAll(body, raw[:0])
		zstdDecoders.Put(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	default:
		return nil, fmt.Errorf("%w: codec %d", ErrCorrupt, codec)
	}

	if uint32(len(raw)) != rawLen {
		return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
	}
	return raw, nil
}
