package rpc

import (
	"encoding/binary"
	"fmt"
)

const headerSize = 12

type frameKind uint8

const (
	kindRequest frameKind = iota + 1
	kindResponse
)

// header はフレームヘッダ
type header struct {
	kind    frameKind
	reqType ReqType
	slot    uint16
	seq     uint32
	size    uint32
}

// put はヘッダを dst の先頭に書き込む
func (h header) put(dst []byte) {
	dst[0] = byte(h.kind)
	dst[1] = byte(h.reqType)
	binary.LittleEndian.PutUint16(dst[2:4], h.slot)
	binary.LittleEndian.PutUint32(dst[4:8], h.seq)
	binary.LittleEndian.PutUint32(dst[8:12], h.size)
}

// parseFrame はヘッダとペイロードを取り出す
func parseFrame(src []byte) (header, []byte, error) {
	if len(src) < headerSize {
		return header{}, nil, fmt.Errorf("%w: %d bytes", ErrBadFrame, len(src))
	}
	h := header{
		kind:    frameKind(src[0]),
		reqType: ReqType(src[1]),
		slot:    binary.LittleEndian.Uint16(src[2:4]),
		seq:     binary.LittleEndian.Uint32(src[4:8]),
		size:    binary.LittleEndian.Uint32(src[8:12]),
	}
	if h.kind != kindRequest && h.kind != kindResponse {
		return header{}, nil, fmt.Errorf("%w: kind %d", ErrBadFrame, h.kind)
	}
	payload := src[headerSize:]
	if int(h.size) != len(payload) {
		return header{}, nil, fmt.Errorf("%w: size %d, payload %d", ErrBadFrame, h.size, len(payload))
	}
	return h, payload, nil
}

// encodeFrame はヘッダとペイロードを dst に書き込み、使用部分を返す
func encodeFrame(dst []byte, h header, payload []byte) []byte {
	h.size = uint32(len(payload))
	h.put(dst)
	n := copy(dst[headerSize:], payload)
	return dst[:headerSize+n]
}
