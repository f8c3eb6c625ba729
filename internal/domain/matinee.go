package domain

type ListMoviesResult struct {
	OK        bool         `json:"ok"`
	Directory string       `json:"directory"`
	Count     int          `json:"count"`
	Entries   []MediaEntry `json:"entries"`
}

type PlayResult struct {
	OK             bool   `json:"ok"`
	File           string `json:"file"`
	Player         string `json:"player"`
	PID            int    `json:"pid"`
	ControlEnabled bool   `json:"control_enabled"`
	ReplacedPID    int    `json:"replaced_pid,omitempty"`
}

type StopResult struct {
	OK         bool   `json:"ok"`
	WasPlaying bool   `json:"was_playing"`
	File       string `json:"file,omitempty"`
}

type ControlResult struct {
	OK      bool   `json:"ok"`
	Command string `json:"command"`
}

type NowPlayingResult struct {
	OK             bool   `json:"ok"`
	Playing        bool   `json:"playing"`
	File           string `json:"file,omitempty"`
	Player         string `json:"player,omitempty"`
	StartedAt      string `json:"started_at,omitempty"`
	ControlEnabled bool   `json:"control_enabled"`
}

type Limitation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ToolError struct {
	Code           string         `json:"code"`
	Message        string         `json:"message"`
	Limitations    []Limitation   `json:"limitations,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}
