package main

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommand(t *testing.T) {
	cases := []struct {
		raw  string
		want Command
	}{
		{`{"t":"join","d":{"match":"m1","name":"Alice","avatar":"a.png"}}`, JoinCmd{Match: "m1", Name: "Alice", Avatar: "a.png"}},
		{`{"t":"join"}`, JoinCmd{}},
		{`{"t":"move","d":{"unit":2,"row":3,"col":3}}`, MoveCmd{Unit: 2, Row: 3, Col: 3}},
		{`{"t":"act","d":{"unit":0,"row":0,"col":1}}`, ActCmd{Unit: 0, Row: 0, Col: 1}},
		{`{"t":"endTurn"}`, EndTurnCmd{}},
		{`{"t":"surrender","d":{}}`, SurrenderCmd{}},
	}
	for _, c := range cases {
		got, err := DecodeCommand([]byte(c.raw))
		require.NoError(t, err, c.raw)
		assert.Equal(t, c.want, got, c.raw)
	}
}

func TestDecodeCommandRejects(t *testing.T) {
	cases := []struct {
		raw  string
		want error
	}{
		{`not json`, ErrMalformedPayload},
		{`{"t":"fly"}`, ErrUnknownCommand},
		{`{"t":"move","d":{"unit":2,"row":3}}`, ErrMalformedPayload},
		{`{"t":"move","d":{"unit":2,"row":-1,"col":3}}`, ErrMalformedPayload},
		{`{"t":"act","d":{"unit":"two","row":1,"col":3}}`, ErrMalformedPayload},
		{`{"t":"act"}`, ErrMalformedPayload},
		{`{"t":"join","d":{"avatar":"` + strings.Repeat("x", maxAvatarLen+1) + `"}}`, ErrMalformedPayload},
	}
	for _, c := range cases {
		_, err := DecodeCommand([]byte(c.raw))
		assert.ErrorIs(t, err, c.want, c.raw)
	}
}

func TestDecodeCommandTruncatesName(t *testing.T) {
	raw := `{"t":"join","d":{"name":"` + strings.Repeat("n", 40) + `"}}`
	cmd, err := DecodeCommand([]byte(raw))
	require.NoError(t, err)
	assert.Len(t, cmd.(JoinCmd).Name, maxNameLen)
}

func TestEnvelopeJSON(t *testing.T) {
	raw, err := json.Marshal(Envelope{T: MsgMoved, Data: MovedMsg{Slot: 0, Unit: 2, To: Cell{Row: 3, Col: 3}, From: Cell{Row: 1, Col: 3}}})
	require.NoError(t, err)

	var env InEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, MsgMoved, env.T)
	assert.Contains(t, string(env.D), `"to":{"r":3,"c":3}`)

	raw, err = json.Marshal(Envelope{T: MsgShutdown})
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"shutdown"}`, string(raw))
}

func TestDecodeCommandNameKeepsRunes(t *testing.T) {
	raw := `{"t":"join","d":{"name":"a` + strings.Repeat("é", 10) + `"}}`
	cmd, err := DecodeCommand([]byte(raw))
	require.NoError(t, err)
	name := cmd.(JoinCmd).Name
	assert.True(t, utf8.ValidString(name))
	assert.Equal(t, "a"+strings.Repeat("é", 7), name)
	assert.LessOrEqual(t, len(name), maxNameLen)
}
