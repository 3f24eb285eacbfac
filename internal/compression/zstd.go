package compression

import (
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

var (
	encoder     *ZStdEncoder
	encoderOnce sync.Once

	decoder     *ZStdDecoder
	decoderOnce sync.Once
)

// ZStdEncoder shares one zstd encoder; EncodeAll is safe for concurrent use.
type ZStdEncoder struct {
	encoder *zstd.Encoder
}

func NewZStdEncoder() *ZStdEncoder {
	encoderOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			log.Panic().Err(err).Msg("failed to create zstd encoder")
		}
		encoder = &ZStdEncoder{encoder: enc}
	})
	return encoder
}

func (e *ZStdEncoder) Encode(data []byte) []byte {
	return e.encoder.EncodeAll(data, make([]byte, 0, len(data)))
}

func (e *ZStdEncoder) EncoderType() Type {
	return TypeZSTD
}

type ZStdDecoder struct {
	decoder *zstd.Decoder
}

func NewZStdDecoder() *ZStdDecoder {
	decoderOnce.Do(func() {
		dec, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(0),
			zstd.WithDecoderLowmem(false),
			zstd.IgnoreChecksum(true))
		if err != nil {
			log.Panic().Err(err).Msg("failed to create zstd decoder")
		}
		decoder = &ZStdDecoder{decoder: dec}
	})
	return decoder
}

func (d *ZStdDecoder) Decode(cdata []byte) ([]byte, error) {
	return d.decoder.DecodeAll(cdata, make([]byte, 0, len(cdata)*3))
}

func (d *ZStdDecoder) DecoderType() Type {
	return TypeZSTD
}
