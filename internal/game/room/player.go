package room

// Player is one member of a room. The zero value is not usable; players are
// created by Room.AddPlayer.
type Player struct {
	// Nickname is the display identity, stable across reconnects.
	Nickname string
	// ConnID is the current live connection binding. It changes on
	// reconnect; the room's player map is keyed by it.
	ConnID string
	// IsAdmin marks the single player holding admin rights.
	IsAdmin bool
	// IsConnected is false between a disconnect and a reconnect.
	IsConnected bool
	// IsEliminated is true once the player has been voted out this game.
	IsEliminated bool
	// Word is the secret word for the current game; empty outside one.
	Word string
}

// View is the public projection of a player broadcast to clients. It never
// carries the secret word.
type View struct {
	Nickname     string `json:"nickname"`
	IsAdmin      bool   `json:"isAdmin"`
	IsConnected  bool   `json:"isConnected"`
	IsEliminated bool   `json:"isEliminated"`
}

func (p *Player) view() View {
	return View{
		Nickname:     p.Nickname,
		IsAdmin:      p.IsAdmin,
		IsConnected:  p.IsConnected,
		IsEliminated: p.IsEliminated,
	}
}

// Elimination is one entry in a room's elimination history.
type Elimination struct {
	Nickname    string `json:"nickname"`
	WasImposter bool   `json:"wasImposter"`
	Round       int    `json:"round"`
}

// TimerConfig is the optional per-phase countdown setting.
type TimerConfig struct {
	Enabled  bool `json:"enabled"`
	Duration int  `json:"duration"`
}
