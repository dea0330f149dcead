package media

import (
	"fmt"

	"github.com/corona10/goimagehash"
)

// KeyFrame is a visually distinct sampled frame
type KeyFrame struct {
	Sampled
	Hash           string
	Representative bool
}

// SelectKeyFrames drops frames whose perceptual hash lies within maxDistance
// bits of an already kept frame. The middle kept frame is representative.
func SelectKeyFrames(samples []Sampled, maxDistance int) ([]KeyFrame, error) {
	var (
		kept   []KeyFrame
		hashes []*goimagehash.ImageHash
	)

	for _, s := range samples {
		hash, err := goimagehash.PerceptionHash(s.Frame)
		if err != nil {
			return nil, fmt.Errorf("hash frame %d: %w", s.Index, err)
		}

		duplicate := false
		for _, h := range hashes {
			dist, err := hash.Distance(h)
			if err != nil {
				return nil, fmt.Errorf("compare frame %d: %w", s.Index, err)
			}
			if dist <= maxDistance {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		hashes = append(hashes, hash)
		kept = append(kept, KeyFrame{Sampled: s, Hash: hash.ToString()})
	}

	if len(kept) > 0 {
		kept[len(kept)/2].Representative = true
	}
	return kept, nil
}

// Representative returns the representative key frame, if any
func Representative(frames []KeyFrame) (KeyFrame, bool) {
	for _, f := range frames {
		if f.Representative {
			return f, true
		}
	}
	return KeyFrame{}, false
}
