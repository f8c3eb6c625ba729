package diagnostics

import (
	"os/exec"

	"matinee.app/mcp-matinee/internal/player"
)

var lookPath = exec.LookPath

type BinaryStatus struct {
	Found bool   `json:"found"`
	Path  string `json:"path,omitempty"`
}

type PlayerStatus struct {
	BinaryStatus

	Binary  string `json:"binary"`
	Control bool   `json:"control"`
}

type DependencyReport struct {
	Players          []PlayerStatus `json:"players"`
	AnyPlayerPresent bool           `json:"any_player_present"`
	ControlCapable   bool           `json:"control_capable"`
}

// DetectDependencies probes PATH for every player this platform can
// launch. ControlCapable reports whether at least one IPC-capable
// player is installed; without one, playback still works but transport
// commands are unavailable.
func DetectDependencies() DependencyReport {
	var report DependencyReport
	for _, cand := range player.Candidates() {
		status := PlayerStatus{
			BinaryStatus: detectBinary(cand.Binary),
			Binary:       cand.Binary,
			Control:      cand.Control,
		}
		report.Players = append(report.Players, status)
		if status.Found {
			report.AnyPlayerPresent = true
			if status.Control {
				report.ControlCapable = true
			}
		}
	}
	return report
}

func detectBinary(name string) BinaryStatus {
	path, err := lookPath(name)
	if err != nil {
		return BinaryStatus{Found: false}
	}

	return BinaryStatus{
		Found: true,
		Path:  path,
	}
}
