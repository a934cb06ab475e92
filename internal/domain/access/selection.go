package access

// FaceSelector picks the authoritative face from a detect result.
// The provider may return several faces per frame; exactly one drives the
// rest of the pipeline.
type FaceSelector func(faces []DetectedFace) *DetectedFace

// FirstByProviderOrder returns the first detected face. This is the default
// policy: the provider's own ordering is trusted as-is.
func FirstByProviderOrder(faces []DetectedFace) *DetectedFace {
	if len(faces) == 0 {
		return nil
	}
	return &faces[0]
}

// LargestArea returns the face with the biggest bounding box, for
// deployments where the closest subject should win over provider order.
func LargestArea(faces []DetectedFace) *DetectedFace {
	if len(faces) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(faces); i++ {
		if faces[i].BBox.Area() > faces[best].BBox.Area() {
			best = i
		}
	}
	return &faces[best]
}

// CandidateSelector picks the best match from a search result
type CandidateSelector func(cands []MatchCandidate) *MatchCandidate

// FirstCandidate trusts the provider to return candidates pre-ordered by
// descending similarity and takes the head of the list.
func FirstCandidate(cands []MatchCandidate) *MatchCandidate {
	if len(cands) == 0 {
		return nil
	}
	return &cands[0]
}

// HighestSimilarity scans the whole list instead of trusting provider order
func HighestSimilarity(cands []MatchCandidate) *MatchCandidate {
	if len(cands) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(cands); i++ {
		if cands[i].Similarity > cands[best].Similarity {
			best = i
		}
	}
	return &cands[best]
}
