package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/echechess/internal/errors"
)

func TestNewActionMessage(t *testing.T) {
	msg, err := NewActionMessage("g1", "s1", "ui1", SideWhite, ActionMove, MovePayload{From: "e2", To: "e4"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.JSONEq(t, `{"from":"e2","to":"e4"}`, string(msg.Payload))

	data, err := msg.Encode()
	require.NoError(t, err)
	decoded, err := DecodeActionMessage(data)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, ActionMove, decoded.Kind)
}

func TestNewActionMessage_Invalid(t *testing.T) {
	_, err := NewActionMessage("", "s1", "", SideWhite, ActionMove, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	_, err = NewActionMessage("g1", "s1", "", SideWhite, ActionKind("CASTLE_TWICE"), nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestDecodeActionMessage_Malformed(t *testing.T) {
	_, err := DecodeActionMessage([]byte("not json"))
	assert.True(t, errors.Is(err, errors.ErrMessageFormat))

	_, err = DecodeActionMessage([]byte(`{"id":"x","game_id":"g1","session_id":"s","kind":"MOVE"}`))
	assert.True(t, errors.Is(err, errors.ErrMessageFormat))
}

func TestDecodePayload(t *testing.T) {
	msg, err := NewActionMessage("g1", "s1", "", SideWhite, ActionMove, MovePayload{From: "e2", To: "e2"})
	require.NoError(t, err)

	var p MovePayload
	assert.True(t, errors.Is(msg.DecodePayload(&p), errors.ErrInvalidArgument))
}

func TestSide(t *testing.T) {
	assert.Equal(t, SideBlack, SideWhite.Opponent())
	assert.Equal(t, SideWhite, SideBlack.Opponent())
	assert.Equal(t, Side(""), SideObserver.Opponent())
	assert.False(t, SideObserver.IsPlayer())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusWaiting, StatusPlaying))
	assert.True(t, CanTransition(StatusPlaying, StatusEnded))
	assert.False(t, CanTransition(StatusEnded, StatusPlaying))
	assert.False(t, CanTransition(StatusPlaying, StatusWaiting))
}
