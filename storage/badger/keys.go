package badger

import (
	"encoding/binary"

	"github.com/poiesic/photoscan/core"
)

// Key prefixes for different data types
const (
	collectionMetaPrefix  = "colmeta"
	collectionPointPrefix = "colpt"
)

// makeCollectionKey generates the key holding a collection's dimensionality.
// Format: prefix:collection
func makeCollectionKey(collection string) []byte {
	return []byte(collectionMetaPrefix + ":" + collection)
}

// makePartialPointKey generates the prefix shared by every point of a collection.
// Format: prefix:collection:
func makePartialPointKey(collection string) []byte {
	return []byte(collectionPointPrefix + ":" + collection + ":")
}

// makePointKey generates a key for a point by ID.
// Format: prefix:collection:id
func makePointKey(collection string, id core.ID) []byte {
	prefix := makePartialPointKey(collection)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

func marshalDim(dim int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(dim))
	return buf
}

func unmarshalDim(data []byte) (int, bool) {
	if len(data) != 8 {
		return 0, false
	}
	return int(binary.BigEndian.Uint64(data)), true
}
