package main

import "encoding/json"

// Client -> Server message types
const (
	MsgJoin        = "join"
	MsgLeave       = "leave"
	MsgInput       = "input"
	MsgCreate      = "create" // create session
	MsgList        = "list"   // list sessions
	MsgCheck       = "check"  // check if session exists
	MsgResize      = "resize" // pilot viewport changed
	MsgRegister    = "register"
	MsgLogin       = "login"
	MsgAuth        = "auth"
	MsgLeaderboard = "leaderboard"
)

// Server -> Client message types
const (
	MsgState    = "state"
	MsgWelcome  = "welcome"
	MsgSessions = "sessions"
	MsgJoined   = "joined"
	MsgCreated  = "created" // session created, client should navigate
	MsgError    = "error"
	MsgChecked  = "checked"  // session check response
	MsgGameOver = "gameover" // lives exhausted, field reset
	MsgAuthOK   = "auth_ok"
)

// Roles handed out on join
const (
	RolePilot     = "pilot"
	RoleSpectator = "spectator"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; D stays raw until the handler decodes it
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// ClientInput carries the pilot's held direction keys
type ClientInput struct {
	Left  bool `json:"l"`
	Right bool `json:"r"`
	Up    bool `json:"u"`
	Down  bool `json:"d"`
}

// Binary input frames are 2 bytes: [inputFrameMarker, flags]
const (
	inputFrameMarker = 0x01
	inputLeft        = 0x01
	inputRight       = 0x02
	inputUp          = 0x04
	inputDown        = 0x08
)

// decodeInputFlags unpacks the flags byte of a binary input frame
func decodeInputFlags(flags byte) ClientInput {
	return ClientInput{
		Left:  flags&inputLeft != 0,
		Right: flags&inputRight != 0,
		Up:    flags&inputUp != 0,
		Down:  flags&inputDown != 0,
	}
}

// JoinMsg is sent when a client wants to join a session
type JoinMsg struct {
	Name      string `json:"name"`
	SessionID string `json:"sid"`
}

// CreateMsg is sent when a client wants to create a session
type CreateMsg struct {
	SessionName string `json:"sname"`
}

// ResizeMsg reports the pilot's play-field extent
type ResizeMsg struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ObjectState is one live object in a state frame
type ObjectState struct {
	ID  uint64  `json:"id" msgpack:"id"`
	X   float64 `json:"x" msgpack:"x"`
	Y   float64 `json:"y" msgpack:"y"`
	Tag string  `json:"t" msgpack:"t"`
}

// ShipState is the position of a player, enemy or ally ship
type ShipState struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// GameState is the full state broadcast
type GameState struct {
	Player  ShipState     `json:"p" msgpack:"p"`
	Allies  []ShipState   `json:"al" msgpack:"al"`
	Enemies []ShipState   `json:"e" msgpack:"e"`
	Objects []ObjectState `json:"o" msgpack:"o"`
	Score   int           `json:"sc" msgpack:"sc"`
	Lives   int           `json:"lv" msgpack:"lv"`
	Tick    uint64        `json:"tick" msgpack:"tick"`
}

// WelcomeMsg is sent to a client after it joins
type WelcomeMsg struct {
	Role   string  `json:"role"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

// GameOverMsg summarises a finished run
type GameOverMsg struct {
	Score    int     `json:"score"`
	Kills    int     `json:"kills"`
	Duration float64 `json:"duration"`
}

// SessionInfo is used in the session list
type SessionInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Clients int    `json:"clients"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// CheckMsg is sent by client to check if a session exists
type CheckMsg struct {
	SID string `json:"sid"`
}

// CheckedMsg is the response to a session check
type CheckedMsg struct {
	SID     string `json:"sid"`
	Exists  bool   `json:"exists"`
	Name    string `json:"name,omitempty"`
	Clients int    `json:"clients,omitempty"`
}

// RegisterMsg and LoginMsg carry pilot credentials
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMsg resumes a pilot identity from a stored token
type AuthMsg struct {
	Token string `json:"token"`
}

// AuthOKMsg confirms a pilot identity and carries the pilot's latest runs
type AuthOKMsg struct {
	Token    string   `json:"token"`
	Username string   `json:"username"`
	PlayerID int64    `json:"pid"`
	Runs     []RunRow `json:"runs,omitempty"`
}
