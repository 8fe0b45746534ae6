package model

import (
	"encoding/json"
	"strings"
)

// RoomCodeLength is the fixed size of a shareable room code.
const RoomCodeLength = 6

// Room phases reported by the server in room state payloads.
const (
	RoomWaiting RoomPhase = iota
	RoomPlaying
	RoomEnded
)

type RoomPhase int

// Envelope is the wire unit exchanged with the game server.
// Data is kept raw until the router decodes it for the registered handler.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Message is an outbound envelope before encoding.
type Message struct {
	Type MessageType `json:"type"`
	Data any         `json:"data"`
}

type Player struct {
	ID        uint32 `json:"player_id"`
	Username  string `json:"username"`
	Score     int    `json:"score"`
	IsDrawing bool   `json:"is_drawing"`
	Online    bool   `json:"online"`
}

// UnmarshalJSON treats a missing "online" field as online.
func (p *Player) UnmarshalJSON(b []byte) error {
	type plain Player
	v := plain{Online: true}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = Player(v)
	return nil
}

// RoomState is the full room projection the server pushes with ROOM_JOINED,
// GAME_START, ROUND_START, GAME_END and RECONNECT_SUCCESS.
// Pointer fields distinguish "absent" from zero.
type RoomState struct {
	RoomID        uint32    `json:"room_id"`
	RoomCode      string    `json:"room_code,omitempty"`
	PlayerCount   int       `json:"player_count,omitempty"`
	State         RoomPhase `json:"state"`
	CurrentDrawer int       `json:"current_drawer"`
	WordMask      string    `json:"word_mask,omitempty"`
	Word          string    `json:"word,omitempty"`
	Round         *int      `json:"round,omitempty"`
	TotalRounds   *int      `json:"total_rounds,omitempty"`
	TimeRemaining *int      `json:"time_remaining,omitempty"`
	Players       []Player  `json:"players,omitempty"`
}

type RegisterAck struct {
	PlayerID     uint32 `json:"player_id"`
	SessionToken string `json:"session_token"`
	Username     string `json:"username,omitempty"`
}

type RoomCreated struct {
	RoomID   uint32 `json:"room_id"`
	RoomCode string `json:"room_code"`
}

type WordToDraw struct {
	Word string `json:"word"`
}

type ChatLine struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type GuessCorrect struct {
	PlayerID uint32 `json:"player_id"`
	Username string `json:"username"`
	Score    *int   `json:"score,omitempty"`
}

type TimerUpdate struct {
	TimeRemaining *int `json:"time_remaining,omitempty"`
}

type CountdownUpdate struct {
	Countdown int `json:"countdown"`
}

type RoundEnd struct {
	Word    string   `json:"word,omitempty"`
	Players []Player `json:"players,omitempty"`
}

type PlayerJoin struct {
	Username string  `json:"username"`
	Player   *Player `json:"player,omitempty"`
}

type PlayerLeave struct {
	PlayerID uint32 `json:"player_id"`
	Username string `json:"username"`
}

// ScoreUpdate carries either a full roster or a single (player_id, score) delta.
type ScoreUpdate struct {
	Players  []Player `json:"players,omitempty"`
	PlayerID *uint32  `json:"player_id,omitempty"`
	Score    *int     `json:"score,omitempty"`
}

type ErrorNotice struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Text returns whichever of the error fields the server filled in.
func (e ErrorNotice) Text() string {
	if e.Error != "" {
		return e.Error
	}
	if e.Message != "" {
		return e.Message
	}
	return "Unknown error"
}

// Stroke is one replicated line segment.
// PlayerID is nil when the server did not stamp an origin.
type Stroke struct {
	ID        uint32  `json:"stroke_id"`
	X1        float64 `json:"x1"`
	Y1        float64 `json:"y1"`
	X2        float64 `json:"x2"`
	Y2        float64 `json:"y2"`
	Color     uint32  `json:"color"`
	Thickness int     `json:"thickness"`
	Timestamp int64   `json:"timestamp"`
	PlayerID  *uint32 `json:"player_id,omitempty"`
}

// Outbound payloads.
type (
	Empty struct{}

	RegisterRequest struct {
		Username string `json:"username"`
	}

	JoinRoomRequest struct {
		RoomCode string `json:"room_code,omitempty"`
	}

	ChatRequest struct {
		Message string `json:"message"`
	}

	ReconnectRequest struct {
		SessionToken string `json:"session_token"`
	}
)

// CanonicalRoomCode trims and upper-cases a user supplied room code.
func CanonicalRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
