package peers

import (
	"fmt"
	"io/ioutil"
	"os"
	"testing"

	"github.com/mosaicnetworks/tabsync/src/net"
)

func TestJSONPeers(t *testing.T) {
	// Create a test dir
	dir, err := ioutil.TempDir("", "tabsync")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	store := NewJSONPeers(dir)

	// Try a read, should get nothing
	peers, err := store.Peers()
	if err == nil {
		t.Fatalf("store.Peers() should generate an error")
	}
	if peers != nil {
		t.Fatalf("peers: %v", peers)
	}

	newPeers := []*Peer{}
	for i := 0; i < 3; i++ {
		newPeers = append(newPeers, &Peer{
			Address:  fmt.Sprintf("addr%d", i),
			Origin:   fmt.Sprintf("https://app%d.example", i),
			Relation: string(net.Opener),
		})
	}

	if err := store.SetPeers(newPeers); err != nil {
		t.Fatalf("err: %v", err)
	}

	// Try a read, should find 3 peers
	peers, err = store.Peers()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(peers) != 3 {
		t.Fatalf("peers: %v", peers)
	}

	for i := 0; i < 3; i++ {
		if *peers[i] != *newPeers[i] {
			t.Fatalf("peers[%d] should be %v, not %v", i, newPeers[i], peers[i])
		}
	}
}

func TestEmptyJSONPeers(t *testing.T) {
	dir, err := ioutil.TempDir("", "tabsync")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	store := NewJSONPeers(dir)
	if err := ioutil.WriteFile(store.Path(), []byte("\n"), 0644); err != nil {
		t.Fatal(err)
	}

	peers, err := store.Peers()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if peers != nil {
		t.Fatalf("peers should be nil, not %v", peers)
	}
}

func TestToNet(t *testing.T) {
	peers := []*Peer{
		{Address: "self"},
		{Address: "a", Relation: "opener"},
		{Address: "b", Origin: "https://b.example", Relation: "frame", ElementID: "side"},
		{Address: "c", Relation: "sibling"},
		{Origin: "https://nowhere.example"},
	}

	res := ToNet(peers, "self", "https://own.example")

	expected := []net.Peer{
		{Address: "a", Origin: "https://own.example", Relation: net.Opener},
		{Address: "b", Origin: "https://b.example", Relation: net.Frame, ElementID: "side"},
		{Address: "c", Origin: "https://own.example", Relation: net.Popup},
	}

	if len(res) != len(expected) {
		t.Fatalf("should have %d peers, not %d", len(expected), len(res))
	}
	for i := range expected {
		if res[i] != expected[i] {
			t.Fatalf("res[%d] should be %v, not %v", i, expected[i], res[i])
		}
	}
}

func TestStaticPeers(t *testing.T) {
	store := &StaticPeers{}

	peers, _ := store.Peers()
	if len(peers) != 0 {
		t.Fatalf("peers: %v", peers)
	}

	store.SetPeers([]*Peer{NewPeer("a", "o")})

	peers, _ = store.Peers()
	if len(peers) != 1 || peers[0].Address != "a" {
		t.Fatalf("peers: %v", peers)
	}
}
