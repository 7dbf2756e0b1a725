package faststore

import "encoding/binary"

// Key layout: <entity>:<chain>:<id>[:<attribute>], with big-endian height
// suffixes so lexicographic order equals numeric order, mirroring the
// teacher's systemBlockKey big-endian height encoding in pkg/ledger/store.go.
// Event keys are event:<chain>:<height_be>:<logidx_be> and carry no
// contract segment; there are no block-by-hash or cross-chain message keys.

func beHeight(height uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, height)
	return b
}

func blockKey(chain string, height uint64) []byte {
	k := append([]byte("block:"+chain+":"), beHeight(height)...)
	return k
}

func blockPrefix(chain string) []byte {
	return []byte("block:" + chain + ":")
}

func cursorKey(chain string) []byte {
	return []byte("cursor:" + chain)
}

func finalityKey(chain, status string) []byte {
	return []byte("status:" + chain + ":" + status)
}

func eventKey(chain string, height uint64, logIndex uint64) []byte {
	k := append([]byte("event:"+chain+":"), beHeight(height)...)
	k = append(k, ':')
	k = append(k, beHeight(logIndex)...)
	return k
}

func eventRangePrefix(chain string) []byte {
	return []byte("event:" + chain + ":")
}

func eventLowerBound(chain string, fromHeight uint64) []byte {
	return append([]byte("event:"+chain+":"), beHeight(fromHeight)...)
}

func eventUpperBound(chain string, toHeight uint64) []byte {
	// toHeight inclusive: the exclusive scan bound is one past the
	// highest possible log-index suffix at toHeight, i.e. the start of
	// toHeight+1's range.
	return append([]byte("event:"+chain+":"), beHeight(toHeight+1)...)
}

func txKey(chain, txHash string) []byte {
	return []byte("tx:" + chain + ":" + txHash)
}
