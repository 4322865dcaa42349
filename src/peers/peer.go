package peers

import (
	"github.com/mosaicnetworks/tabsync/src/net"
)

// Peer is the on-disk form of a neighbour.
type Peer struct {
	Address   string `json:"address"`
	Origin    string `json:"origin,omitempty"`
	Relation  string `json:"relation,omitempty"`
	ElementID string `json:"element_id,omitempty"`
}

// NewPeer creates a Peer with the given address and origin.
func NewPeer(address, origin string) *Peer {
	return &Peer{
		Address: address,
		Origin:  origin,
	}
}

// ToNet converts the Peer to a channel peer. defaultOrigin replaces a missing
// origin.
func (p *Peer) ToNet(defaultOrigin string) net.Peer {
	origin := p.Origin
	if origin == "" {
		origin = defaultOrigin
	}

	relation := net.Relation(p.Relation)
	switch relation {
	case net.Opener, net.Popup, net.Parent, net.Frame:
	default:
		relation = net.Popup
	}

	return net.Peer{
		Address:   p.Address,
		Origin:    origin,
		Relation:  relation,
		ElementID: p.ElementID,
	}
}

// ToNet converts a list of peers, dropping the ones whose address is self.
func ToNet(peers []*Peer, self, defaultOrigin string) []net.Peer {
	res := make([]net.Peer, 0, len(peers))
	for _, p := range peers {
		if p.Address == "" || p.Address == self {
			continue
		}
		res = append(res, p.ToNet(defaultOrigin))
	}
	return res
}
