// Package request defines the lookup requests exchanged between client and server.
//
// A Request is either a point lookup of one key or a range scan starting at a
// key. Both encode to the same fixed wire size so that buffers can be sized
// once; the response is a single little-endian machine word.
package request

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Type はリクエストの種類を表す
type Type uint8

const (
	TypePoint Type = iota + 1
	TypeRange
)

func (t Type) String() string {
	switch t {
	case TypePoint:
		return "point"
	case TypeRange:
		return "range"
	default:
		return "unknown"
	}
}

const (
	// WireSize はエンコード後のリクエストサイズ（判別子 + 大きい方のペイロード）
	WireSize = 24
	// RespSize はレスポンスサイズ（1ワード）
	RespSize = 8

	// NotFound はポイント検索でキーが無い場合のレスポンス値
	NotFound = ^uint64(0)
)

var (
	ErrShortBuffer = errors.New("request: buffer too short")
	ErrBadType     = errors.New("request: unknown request type")
)

// Request はポイントまたはレンジ検索を表す
type Request struct {
	Type Type
	Key  uint64
	Span uint64 // TypeRange のみ
}

// Point はポイント検索リクエストを作成する
func Point(key uint64) Request {
	return Request{Type: TypePoint, Key: key}
}

// Range はレンジ検索リクエストを作成する
func Range(key, span uint64) Request {
	return Request{Type: TypeRange, Key: key, Span: span}
}

func (r Request) String() string {
	if r.Type == TypeRange {
		return fmt.Sprintf("range{key=%d span=%d}", r.Key, r.Span)
	}
	return fmt.Sprintf("%s{key=%d}", r.Type, r.Key)
}

// Encode はリクエストを dst にエンコードする
func (r Request) Encode(dst []byte) error {
	if len(dst) < WireSize {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint64(dst[0:8], uint64(r.Type))
	binary.LittleEndian.PutUint64(dst[8:16], r.Key)
	span := r.Span
	if r.Type != TypeRange {
		span = 0
	}
	binary.LittleEndian.PutUint64(dst[16:24], span)
	return nil
}

// Decode はバイト列からリクエストをデコードする
func Decode(src []byte) (Request, error) {
	if len(src) < WireSize {
		return Request{}, ErrShortBuffer
	}
	t := Type(binary.LittleEndian.Uint64(src[0:8]))
	if t != TypePoint && t != TypeRange {
		return Request{}, fmt.Errorf("%w: %d", ErrBadType, t)
	}
	return Request{
		Type: t,
		Key:  binary.LittleEndian.Uint64(src[8:16]),
		Span: binary.LittleEndian.Uint64(src[16:24]),
	}, nil
}

// PeekType はデコードせずに判別子だけを読む
func PeekType(src []byte) Type {
	if len(src) < 8 {
		return 0
	}
	return Type(binary.LittleEndian.Uint64(src[0:8]))
}

// EncodeResponse はレスポンス値を dst に書き込む
func EncodeResponse(dst []byte, v uint64) error {
	if len(dst) < RespSize {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint64(dst, v)
	return nil
}

// DecodeResponse はレスポンス値を読み出す
func DecodeResponse(src []byte) (uint64, error) {
	if len(src) != RespSize {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrShortBuffer, len(src), RespSize)
	}
	return binary.LittleEndian.Uint64(src), nil
}
