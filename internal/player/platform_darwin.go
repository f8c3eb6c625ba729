//go:build darwin

package player

func platformCandidates() []candidate {
	return []candidate{
		mpvCandidate(),
		{binary: "open", args: fileOnlyArgs},
	}
}
