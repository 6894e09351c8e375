package eventstore

import "encoding/binary"

// Pebble keyspace, byte-wise sortable:
//
//	room/{room}/log/m              last issued id (be8)
//	room/{room}/log/e/{id_be8}     entry
//	room/{room}/users/{name}       presence member

var (
	roomPrefix = []byte("room/")
	logSeg     = []byte("/log/")
	metaSuffix = []byte("m")
	entrySeg   = []byte("e/")
	usersSeg   = []byte("/users/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyRoom is the prefix shared by every key of a room.
func keyRoom(room string) []byte {
	k := make([]byte, 0, len(roomPrefix)+len(room)+1)
	k = append(k, roomPrefix...)
	k = append(k, room...)
	return append(k, '/')
}

func keyLogPrefix(room string) []byte {
	k := make([]byte, 0, len(room)+16)
	k = append(k, roomPrefix...)
	k = append(k, room...)
	return append(k, logSeg...)
}

// keyLogMeta holds the last issued id.
func keyLogMeta(room string) []byte {
	return append(keyLogPrefix(room), metaSuffix...)
}

// keyEntryPrefix is the prefix of every entry key.
func keyEntryPrefix(room string) []byte {
	return append(keyLogPrefix(room), entrySeg...)
}

// keyEntry builds the entry key with a big-endian id for proper ordering.
func keyEntry(room string, id uint64) []byte {
	return appendBE8(keyEntryPrefix(room), id)
}

// entryID extracts the id from an entry key.
func entryID(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

func keyUsersPrefix(room string) []byte {
	k := make([]byte, 0, len(room)+16)
	k = append(k, roomPrefix...)
	k = append(k, room...)
	return append(k, usersSeg...)
}

func keyUser(room, name string) []byte {
	return append(keyUsersPrefix(room), name...)
}
