package domain

const DefaultAudioRange = 48

// GameSettings are owner-controlled and pushed to every player.
type GameSettings struct {
	AudioRange     int  `json:"audioRange"`
	SpectatorVoice bool `json:"spectatorVoice"`
}

func DefaultGameSettings() GameSettings {
	return GameSettings{AudioRange: DefaultAudioRange, SpectatorVoice: true}
}

type PlayerStatus struct {
	IsMuted    bool `json:"isMuted"`
	IsDeafened bool `json:"isDeafened"`
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Rotation is yaw (Y) and pitch (X) in game degrees.
type Rotation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pose is what the audio layer needs to place a voice in space.
type Pose struct {
	Location Vec3     `json:"location"`
	Rotation Rotation `json:"rotation"`
}
