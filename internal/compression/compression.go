package compression

import (
	"errors"
	"fmt"
)

// Type is written as the first byte of every framed payload.
type Type uint8

const (
	TypeNone Type = iota
	TypeZSTD
)

var ErrEmptyFrame = errors.New("empty compressed frame")

type Encoder interface {
	Encode(data []byte) []byte
	EncoderType() Type
}

type Decoder interface {
	Decode(cdata []byte) ([]byte, error)
	DecoderType() Type
}

type NoOpEncoder struct{}

func (e *NoOpEncoder) Encode(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

func (e *NoOpEncoder) EncoderType() Type {
	return TypeNone
}

type NoOpDecoder struct{}

func (d *NoOpDecoder) Decode(cdata []byte) ([]byte, error) {
	return cdata, nil
}

func (d *NoOpDecoder) DecoderType() Type {
	return TypeNone
}

func GetEncoder(compressionType Type) (Encoder, error) {
	switch compressionType {
	case TypeZSTD:
		return NewZStdEncoder(), nil
	case TypeNone:
		return &NoOpEncoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %d", compressionType)
	}
}

func GetDecoder(compressionType Type) (Decoder, error) {
	switch compressionType {
	case TypeZSTD:
		return NewZStdDecoder(), nil
	case TypeNone:
		return &NoOpDecoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %d", compressionType)
	}
}

// Frame compresses data with the given type and prefixes the type byte.
func Frame(compressionType Type, data []byte) ([]byte, error) {
	enc, err := GetEncoder(compressionType)
	if err != nil {
		return nil, err
	}
	payload := enc.Encode(data)
	out := make([]byte, 0, len(payload)+1)
	out = append(out, byte(compressionType))
	return append(out, payload...), nil
}

// Unframe reverses Frame.
func Unframe(framed []byte) ([]byte, error) {
	if len(framed) == 0 {
		return nil, ErrEmptyFrame
	}
	dec, err := GetDecoder(Type(framed[0]))
	if err != nil {
		return nil, err
	}
	return dec.Decode(framed[1:])
}
