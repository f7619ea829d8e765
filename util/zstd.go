package util

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Block compression is pluggable behind CompressionType; this is the
// default Zstd codec. Encoders and decoders are pooled because creating one
// per block would dominate CPU on the write and read paths.
var (
	zstdEncoders = sync.Pool{
		New: func() interface{} {
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
			if err != nil {
				panic(err)
			}
			return enc
		},
	}
	zstdDecoders = sync.Pool{
		New: func() interface{} {
			dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
			if err != nil {
				panic(err)
			}
			return dec
		},
	}
)

func ZstdCompress(input []byte) []byte {
	enc := zstdEncoders.Get().(*zstd.Encoder)
	defer zstdEncoders.Put(enc)
	return enc.EncodeAll(input, make([]byte, 0, len(input)))
}

func ZstdUncompress(input []byte) ([]byte, error) {
	dec := zstdDecoders.Get().(*zstd.Decoder)
	defer zstdDecoders.Put(dec)
	return dec.DecodeAll(input, nil)
}
