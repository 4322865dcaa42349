package peers

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"sync"
)

const jsonPeerPath = "peers.json"

// PeerStore provides access to a neighbour list.
type PeerStore interface {
	Peers() ([]*Peer, error)
	SetPeers([]*Peer) error
}

// JSONPeers is used to provide peer persistence on disk in the form
// of a JSON file. This allows human operators to manipulate the file.
type JSONPeers struct {
	l    sync.Mutex
	path string
}

// NewJSONPeers creates a new JSONPeers store.
func NewJSONPeers(base string) *JSONPeers {
	return &JSONPeers{
		path: filepath.Join(base, jsonPeerPath),
	}
}

// Path returns the location of the JSON file.
func (j *JSONPeers) Path() string {
	return j.path
}

// Peers implements the PeerStore interface.
func (j *JSONPeers) Peers() ([]*Peer, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	// Check for no peers
	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, nil
	}

	var peers []*Peer
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&peers); err != nil {
		return nil, err
	}

	return peers, nil
}

// SetPeers implements the PeerStore interface.
func (j *JSONPeers) SetPeers(peers []*Peer) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(peers); err != nil {
		return err
	}

	return ioutil.WriteFile(j.path, buf.Bytes(), 0644)
}

// StaticPeers is used to provide a static list of peers.
type StaticPeers struct {
	StaticPeers []*Peer
	l           sync.Mutex
}

// Peers implements the PeerStore interface.
func (s *StaticPeers) Peers() ([]*Peer, error) {
	s.l.Lock()
	peers := s.StaticPeers
	s.l.Unlock()
	return peers, nil
}

// SetPeers implements the PeerStore interface.
func (s *StaticPeers) SetPeers(p []*Peer) error {
	s.l.Lock()
	s.StaticPeers = p
	s.l.Unlock()
	return nil
}
