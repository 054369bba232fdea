package game

import (
	"encoding/json"

	"github.com/wfunc/echechess/internal/errors"
)

// EncodeState 序列化对局状态，写入仓储的就是这段字节
func EncodeState(st *State) ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrGameState, "序列化对局状态失败")
	}
	return data, nil
}

// DecodeState 反序列化对局状态
func DecodeState(data []byte) (*State, error) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errors.Wrap(err, errors.ErrGameState, "对局状态损坏")
	}
	return &st, nil
}
