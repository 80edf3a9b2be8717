package chat

import (
	"encoding/json"
	"strings"

	decode "PPRealtime/tools/decode"
	"PPRealtime/tools/errs"
)

// 客户端 -> 服务端
const (
	VerbConnect     = "CONNECT"
	VerbSubscribe   = "SUBSCRIBE"
	VerbUnsubscribe = "UNSUBSCRIBE"
	VerbSend        = "SEND"
	VerbPing        = "PING"
)

// 服务端 -> 客户端
const (
	FrameConnected    = "CONNECTED"
	FrameSubscribed   = "SUBSCRIBED"
	FrameUnsubscribed = "UNSUBSCRIBED"
	FrameMessage      = "MESSAGE"
	FrameReceipt      = "RECEIPT"
	FrameError        = "ERROR"
	FramePong         = "PONG"
)

// Frame 入站帧
type Frame struct {
	Type    string            `json:"type"`
	Token   string            `json:"token"`
	Headers map[string]string `json:"headers"`
	Channel string            `json:"channel"`
	ID      string            `json:"id"`  // 订阅号
	Ref     string            `json:"ref"` // 请求号，RECEIPT/ERROR 原样带回
	Payload json.RawMessage   `json:"payload"`
}

// ParseFrameJSON protojson -> structpb -> Frame
func ParseFrameJSON(raw []byte) (*Frame, error) {
	st, err := decode.ParseJSON(raw)
	if err != nil {
		return nil, err
	}
	f, err := decode.DecodeStruct[Frame](st)
	if err != nil {
		return nil, err
	}
	f.Type = strings.ToUpper(strings.TrimSpace(f.Type))
	if f.Type == "" {
		return nil, errs.ErrInvalidRequest.WrapMsg("frame type is required")
	}
	return f, nil
}

// Credential token 字段优先，其次 headers 里的 Authorization: Bearer
func (f *Frame) Credential() string {
	if t := strings.TrimSpace(f.Token); t != "" {
		return t
	}
	for k, v := range f.Headers {
		if !strings.EqualFold(k, "authorization") {
			continue
		}
		v = strings.TrimSpace(v)
		if len(v) > len("bearer ") && strings.EqualFold(v[:len("bearer ")], "bearer ") {
			return strings.TrimSpace(v[len("bearer "):])
		}
	}
	return ""
}

// SendPayload SEND 帧的 payload
type SendPayload struct {
	Content       string `json:"content"`
	AttachmentURL string `json:"attachmentUrl"`
}

func DecodeSendPayload(raw json.RawMessage) (*SendPayload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return &SendPayload{}, nil
	}
	st, err := decode.ParseJSON(raw)
	if err != nil {
		return nil, errs.ErrInvalidRequest.WrapMsg("payload must be an object")
	}
	return decode.DecodeStruct[SendPayload](st)
}

// ServerFrame 出站帧
type ServerFrame struct {
	Type      string          `json:"type"`
	Principal string          `json:"principal,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	ID        string          `json:"id,omitempty"`
	Ref       string          `json:"ref,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Code      int             `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
}

func (f *ServerFrame) Encode() []byte {
	b, err := json.Marshal(f)
	if err != nil {
		// 只可能是 payload 非法
		b, _ = json.Marshal(&ServerFrame{Type: FrameError, Code: errs.ServerInternalError, Message: "encode frame"})
	}
	return b
}

func BuildConnected(principal string) *ServerFrame {
	return &ServerFrame{Type: FrameConnected, Principal: principal}
}

func BuildSubscribed(channel, id, ref string) *ServerFrame {
	return &ServerFrame{Type: FrameSubscribed, Channel: channel, ID: id, Ref: ref}
}

func BuildUnsubscribed(channel, id, ref string) *ServerFrame {
	return &ServerFrame{Type: FrameUnsubscribed, Channel: channel, ID: id, Ref: ref}
}

func BuildMessage(channel string, payload []byte) *ServerFrame {
	return &ServerFrame{Type: FrameMessage, Channel: channel, Payload: payload}
}

func BuildReceipt(ref string, payload []byte) *ServerFrame {
	return &ServerFrame{Type: FrameReceipt, Ref: ref, Payload: payload}
}

func BuildPong(ref string) *ServerFrame {
	return &ServerFrame{Type: FramePong, Ref: ref}
}

// BuildError 内部错误不带细节
func BuildError(err error, ref string) *ServerFrame {
	ce := errs.AsCode(err)
	msg := ce.Msg
	if ce.Code != errs.ServerInternalError && ce.Detail != "" {
		msg = ce.Detail
	}
	return &ServerFrame{Type: FrameError, Code: ce.Code, Message: msg, Ref: ref}
}
