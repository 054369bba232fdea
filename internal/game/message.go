package game

import (
	"encoding/json"
	"regexp"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wfunc/echechess/internal/errors"
)

// ActionMessage 总线上传递的动作请求，可安全重复投递
type ActionMessage struct {
	ID          string          `json:"id" validate:"required,uuid"`
	GameID      string          `json:"game_id" validate:"required"`
	SessionID   string          `json:"session_id" validate:"required"`
	UiSessionID string          `json:"ui_session_id,omitempty"`
	ActingSide  Side            `json:"acting_side,omitempty" validate:"omitempty,oneof=WHITE BLACK OBSERVER"`
	Kind        ActionKind      `json:"kind" validate:"required,oneof=MOVE JOIN SET_SIDE PROMOTE"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	IssuedAt    time.Time       `json:"issued_at"`
}

// MovePayload 走子
type MovePayload struct {
	From      string `json:"from" validate:"required,square"`
	To        string `json:"to" validate:"required,square,nefield=From"`
	Promotion string `json:"promotion,omitempty" validate:"omitempty,oneof=QUEEN ROOK BISHOP KNIGHT"`
}

// SetSidePayload 换边
type SetSidePayload struct {
	Side Side `json:"side" validate:"required,oneof=WHITE BLACK"`
}

// PromotePayload 兵升变
type PromotePayload struct {
	Piece string `json:"piece" validate:"required,oneof=QUEEN ROOK BISHOP KNIGHT"`
}

var (
	squarePattern = regexp.MustCompile(`^[a-h][1-8]$`)

	validateOnce sync.Once
	validate     *validator.Validate
)

// messageValidator 懒加载的校验器，注册棋盘格校验规则
func messageValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterValidation("square", func(fl validator.FieldLevel) bool {
			return squarePattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// NewActionMessage 创建动作请求并分配ID
func NewActionMessage(gameID, sessionID, uiSessionID string, side Side, kind ActionKind, payload interface{}) (*ActionMessage, error) {
	msg := &ActionMessage{
		ID:          uuid.NewString(),
		GameID:      gameID,
		SessionID:   sessionID,
		UiSessionID: uiSessionID,
		ActingSide:  side,
		Kind:        kind,
		IssuedAt:    time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrInvalidArgument, "序列化动作参数失败")
		}
		msg.Payload = raw
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Validate 结构校验
func (m *ActionMessage) Validate() error {
	if err := messageValidator().Struct(m); err != nil {
		return errors.Wrap(err, errors.ErrInvalidArgument, "动作请求不完整")
	}
	return nil
}

// DecodePayload 解析并校验动作参数
func (m *ActionMessage) DecodePayload(dst interface{}) error {
	if len(m.Payload) == 0 {
		return errors.Newf(errors.ErrInvalidArgument, "%s 缺少参数", m.Kind)
	}
	if err := json.Unmarshal(m.Payload, dst); err != nil {
		return errors.Wrap(err, errors.ErrMessageFormat, "动作参数格式错误")
	}
	if err := messageValidator().Struct(dst); err != nil {
		return errors.Wrap(err, errors.ErrInvalidArgument, "动作参数无效")
	}
	return nil
}

// Encode 序列化
func (m *ActionMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeActionMessage 反序列化并校验总线上收到的动作请求
func DecodeActionMessage(data []byte) (*ActionMessage, error) {
	var msg ActionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, errors.ErrMessageFormat, "动作请求无法解析")
	}
	if err := messageValidator().Struct(&msg); err != nil {
		return nil, errors.Wrap(err, errors.ErrMessageFormat, "动作请求字段无效")
	}
	return &msg, nil
}
