//go:build windows

package player

func platformCandidates() []candidate {
	return []candidate{
		mpvCandidate(),
		{binary: "cmd", label: "start", args: func(path, _ string, _ bool) []string {
			return []string{"/c", "start", "", path}
		}},
	}
}
