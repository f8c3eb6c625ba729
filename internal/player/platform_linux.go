//go:build linux

package player

func platformCandidates() []candidate {
	return []candidate{
		mpvCandidate(),
		{binary: "vlc", args: fileOnlyArgs},
		{binary: "mplayer", args: fileOnlyArgs},
		{binary: "xdg-open", args: fileOnlyArgs},
	}
}
