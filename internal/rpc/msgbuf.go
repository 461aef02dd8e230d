package rpc

import "fmt"

// MaxMsgSize はメッセージペイロードの最大サイズ
const MaxMsgSize = 4096

// MsgBuffer は容量固定で再利用されるメッセージバッファ
type MsgBuffer struct {
	buf  []byte
	size int
}

// NewMsgBuffer は指定容量のバッファを確保する
func NewMsgBuffer(capacity int) *MsgBuffer {
	if capacity <= 0 || capacity > MaxMsgSize {
		panic(fmt.Sprintf("rpc: invalid msgbuf capacity %d", capacity))
	}
	return &MsgBuffer{
		buf:  make([]byte, capacity),
		size: capacity,
	}
}

// Resize はデータサイズを変更する。確保済み容量を超えることはできない
func (m *MsgBuffer) Resize(n int) {
	if n < 0 || n > len(m.buf) {
		panic(fmt.Sprintf("rpc: resize to %d exceeds capacity %d", n, len(m.buf)))
	}
	m.size = n
}

// Data は有効なデータ部分を返す
func (m *MsgBuffer) Data() []byte {
	return m.buf[:m.size]
}

// Size はデータサイズを返す
func (m *MsgBuffer) Size() int {
	return m.size
}

// Cap は確保済み容量を返す
func (m *MsgBuffer) Cap() int {
	return len(m.buf)
}

// fill は src をコピーし、容量を超えた分は切り捨てる
func (m *MsgBuffer) fill(src []byte) {
	n := copy(m.buf, src)
	m.size = n
}
