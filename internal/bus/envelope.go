package bus

import (
	"encoding/json"

	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/service"
	"github.com/wfunc/echechess/internal/websocket"
)

// EnvelopeType 事件主题上的消息类型
type EnvelopeType string

const (
	EnvelopeEvent   EnvelopeType = "event"
	EnvelopeOutcome EnvelopeType = "outcome"
)

// Envelope 事件主题上的消息
type Envelope struct {
	Type      EnvelopeType     `json:"type"`
	NodeID    string           `json:"node_id"`
	Event     *websocket.Event `json:"event,omitempty"`
	Outcome   *service.Outcome `json:"outcome,omitempty"`
	ErrorCode errors.ErrorCode `json:"error_code,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Err 回复中携带的错误
func (e *Envelope) Err() error {
	if e.ErrorCode == 0 {
		return nil
	}
	return errors.New(e.ErrorCode, e.Error)
}

// Encode 序列化
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrMessageFormat, "序列化总线消息失败")
	}
	return data, nil
}

// DecodeEnvelope 反序列化
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrMessageFormat, "总线消息无法解析")
	}
	switch env.Type {
	case EnvelopeEvent:
		if env.Event == nil {
			return nil, errors.New(errors.ErrMessageFormat, "事件消息缺少事件")
		}
	case EnvelopeOutcome:
		if env.Outcome == nil {
			return nil, errors.New(errors.ErrMessageFormat, "回复消息缺少结果")
		}
	default:
		return nil, errors.Newf(errors.ErrMessageFormat, "未知的总线消息类型: %s", env.Type)
	}
	return &env, nil
}
