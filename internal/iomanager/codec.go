package iomanager

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const encodingZstd = "zstd"

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

// EncodeAll and DecodeAll are safe for concurrent use, so one pair serves
// every PartitionedIO.
func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(256<<20))
	})
	return encoder, decoder, codecErr
}

func encode(body []byte) ([]byte, error) {
	enc, _, err := codec()
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return enc.EncodeAll(body, make([]byte, 0, len(body)/2+64)), nil
}

func decode(raw []byte, contentEncoding string) ([]byte, error) {
	switch contentEncoding {
	case "", "identity":
		return raw, nil
	case encodingZstd:
		_, dec, err := codec()
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		out, err := dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", contentEncoding)
	}
}
