package hash

import (
	"hash/fnv"
)

// GA hashes GroupId + ArtifactId for per-artifact locking
func GA(g, a string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(g))
	h.Write([]byte("|"))
	h.Write([]byte(a))
	return h.Sum64()
}

// GAVC hashes GroupId + ArtifactId + Version + Classifier + Extension for deduplication
func GAVC(g, a, v, c, ext string) uint64 {
	h := fnv.New64a()
	for i, s := range []string{g, a, v, c, ext} {
		if i > 0 {
			h.Write([]byte("|"))
		}
		h.Write([]byte(s))
	}
	return h.Sum64()
}
