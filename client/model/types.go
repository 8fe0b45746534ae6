package model

import "strconv"

type MessageType int

// Control and game messages. Values must match the server enumeration exactly.
const (
	TypePing MessageType = iota
	TypePong
	TypeRegister
	TypeRegisterAck
	TypeJoinRoom
	TypeCreateRoom
	TypeRoomCreated
	TypeRoomJoined
	TypeRoomFull
	TypeRoomNotFound
	TypeGameStart
	TypeYourTurn
	TypeWordToDraw
	TypeRoundStart
	TypeChat
	TypeChatBroadcast
	TypeGuessCorrect
	TypeGuessWrong
	TypeTimerUpdate
	TypeCountdownUpdate
	TypeRoundEnd
	TypeGameEnd
	TypePlayerJoin
	TypePlayerLeave
	TypeScoreUpdate
	TypeReconnectRequest
	TypeReconnectSuccess
	TypeReconnectFail
	TypeError
	TypeDisconnect
)

// High-frequency drawing messages live in their own range.
const (
	TypeStroke MessageType = iota + 100
	TypeClearCanvas
	TypeUndo
)

var typeNames = map[MessageType]string{
	TypePing:             "PING",
	TypePong:             "PONG",
	TypeRegister:         "REGISTER",
	TypeRegisterAck:      "REGISTER_ACK",
	TypeJoinRoom:         "JOIN_ROOM",
	TypeCreateRoom:       "CREATE_ROOM",
	TypeRoomCreated:      "ROOM_CREATED",
	TypeRoomJoined:       "ROOM_JOINED",
	TypeRoomFull:         "ROOM_FULL",
	TypeRoomNotFound:     "ROOM_NOT_FOUND",
	TypeGameStart:        "GAME_START",
	TypeYourTurn:         "YOUR_TURN",
	TypeWordToDraw:       "WORD_TO_DRAW",
	TypeRoundStart:       "ROUND_START",
	TypeChat:             "CHAT",
	TypeChatBroadcast:    "CHAT_BROADCAST",
	TypeGuessCorrect:     "GUESS_CORRECT",
	TypeGuessWrong:       "GUESS_WRONG",
	TypeTimerUpdate:      "TIMER_UPDATE",
	TypeCountdownUpdate:  "COUNTDOWN_UPDATE",
	TypeRoundEnd:         "ROUND_END",
	TypeGameEnd:          "GAME_END",
	TypePlayerJoin:       "PLAYER_JOIN",
	TypePlayerLeave:      "PLAYER_LEAVE",
	TypeScoreUpdate:      "SCORE_UPDATE",
	TypeReconnectRequest: "RECONNECT_REQUEST",
	TypeReconnectSuccess: "RECONNECT_SUCCESS",
	TypeReconnectFail:    "RECONNECT_FAIL",
	TypeError:            "ERROR",
	TypeDisconnect:       "DISCONNECT",
	TypeStroke:           "STROKE",
	TypeClearCanvas:      "CLEAR_CANVAS",
	TypeUndo:             "UNDO",
}

func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN_" + strconv.Itoa(int(t))
}
