package rpc

// ReqType はリクエスト種別（ハンドラ登録のキー）
type ReqType uint8

// ReqFuncKind はハンドラの実行コンテキスト
type ReqFuncKind int

const (
	// Foreground はエンドポイントのイベントループ上で直接実行する
	Foreground ReqFuncKind = iota
	// Background はNexusのバックグラウンドプールで実行する
	Background
)

func (k ReqFuncKind) String() string {
	switch k {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// Responder はレスポンス送信を受け付けるインターフェース
type Responder interface {
	EnqueueResponse(h *ReqHandle)
}

// ReqHandler はサーバー側のリクエストハンドラ
type ReqHandler func(h *ReqHandle, r Responder)

// ReqFunc は登録されるハンドラと実行コンテキストの組
type ReqFunc struct {
	Handler ReqHandler
	Kind    ReqFuncKind
}

// ReqHandle は受信したリクエストと事前確保済みレスポンスバッファ
// セッションのスロットごとに1つ確保され、呼び出し間で再利用される。
type ReqHandle struct {
	reqType ReqType
	req     *MsgBuffer

	// PreResp はハンドラがレスポンスを書き込む事前確保バッファ
	PreResp *MsgBuffer

	slot  uint16
	seq   uint32
	sess  *serverSession
	txBuf []byte
}

// NewReqHandle は容量 capacity のバッファを持つハンドルを作成する
func NewReqHandle(capacity int) *ReqHandle {
	return &ReqHandle{
		req:     NewMsgBuffer(capacity),
		PreResp: NewMsgBuffer(capacity),
		txBuf:   make([]byte, headerSize+capacity),
	}
}

// SetRequest は受信ペイロードをハンドルに格納する
func (h *ReqHandle) SetRequest(t ReqType, payload []byte) {
	h.reqType = t
	h.req.fill(payload)
}

// Type はリクエスト種別を返す
func (h *ReqHandle) Type() ReqType {
	return h.reqType
}

// Request は受信したリクエストバッファを返す
func (h *ReqHandle) Request() *MsgBuffer {
	return h.req
}

// Slot はセッション内のスロット番号を返す
func (h *ReqHandle) Slot() int {
	return int(h.slot)
}
