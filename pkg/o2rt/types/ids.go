package types

import "github.com/google/uuid"

// ProcessID uniquely identifies a runtime process within an application.
// Discovery's symmetry-breaking rule compares two ProcessIDs
// lexicographically, so the underlying representation must sort stably;
// uuid's canonical string form does.
type ProcessID string

// NewProcessID generates a fresh process identity.
func NewProcessID() ProcessID {
	return ProcessID(uuid.NewString())
}

// Less reports whether p sorts before other, used to pick the
// symmetry-breaking TCP initiator in discovery (the lower id connects).
func (p ProcessID) Less(other ProcessID) bool {
	return p < other
}

// UID identifies a single in-flight message.
type UID string

// NewUID generates a fresh message/request identifier.
func NewUID() UID {
	return UID(uuid.NewString())
}

// PeerID is an arena index into the peer table (Design Note "Cyclic
// references"): the directory stores a PeerID, never a *Peer, so dropping
// a peer can't leave dangling pointers in service-directory entries.
type PeerID uint32

// InvalidPeerID marks "no such peer", used after a drop invalidates an id.
const InvalidPeerID PeerID = 0
