package selector

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
)

// hashIndex tracks perceptual hashes of kept candidates so near-identical
// images from different URLs are evaluated only once.
type hashIndex struct {
	maxDistance int
	entries     []hashEntry
}

type hashEntry struct {
	url  string
	hash *goimagehash.ImageHash
}

func newHashIndex(maxDistance int) *hashIndex {
	return &hashIndex{maxDistance: maxDistance}
}

// add hashes the candidate bytes and reports whether an earlier candidate is
// within the distance threshold. Undecodable or unhashable bytes degrade
// gracefully: the candidate is treated as unique.
func (x *hashIndex) add(url string, body []byte) (string, bool) {
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return "", false
	}

	for _, e := range x.entries {
		d, err := hash.Distance(e.hash)
		if err != nil {
			continue
		}
		if d <= x.maxDistance {
			return e.url, true
		}
	}
	x.entries = append(x.entries, hashEntry{url: url, hash: hash})
	return "", false
}
