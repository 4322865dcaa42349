package node

import (
	"github.com/mosaicnetworks/tabsync/src/envelope"
	"github.com/mosaicnetworks/tabsync/src/roster"
	"github.com/sirupsen/logrus"
)

// leaderState is the election view of a node. selfID is only meaningful once
// assigned.
type leaderState struct {
	selfID   int
	assigned bool
	isLeader bool
	roster   *roster.Roster
}

// promote makes the node the primordial leader.
func (l *leaderState) promote() {
	l.selfID = 0
	l.assigned = true
	l.isLeader = true
	l.roster = roster.New(0)
}

// IsLeader reports whether the node is the leader.
func (n *Node) IsLeader() bool {
	n.coreLock.RLock()
	defer n.coreLock.RUnlock()
	return n.leader.isLeader
}

// SelfID returns the participant id of the node. ok is false until the
// leader assigned one.
func (n *Node) SelfID() (id int, ok bool) {
	n.coreLock.RLock()
	defer n.coreLock.RUnlock()
	return n.leader.selfID, n.leader.assigned
}

// CurrentRoster returns the participant ids known to the node, leader first.
func (n *Node) CurrentRoster() []int {
	n.coreLock.RLock()
	defer n.coreLock.RUnlock()
	return n.leader.roster.IDs()
}

func (n *Node) notifyTabs(ids []int) {
	if n.conf.OnTabsChange != nil {
		n.conf.OnTabsChange(ids)
	}
}

// onSync answers a newcomer. Without election any synced node replies with
// its state. With election only the leader does, and it also assigns the
// newcomer an id.
func (n *Node) onSync(env *envelope.Envelope) {
	if !n.conf.Election {
		if n.IsSynced() {
			if err := n.broadcastState(); err != nil {
				n.logger.WithError(err).Error("Failed to answer sync")
			}
		}
		return
	}

	if !n.IsLeader() {
		return
	}

	if err := n.broadcastState(); err != nil {
		n.logger.WithError(err).Error("Failed to answer sync")
	}

	n.coreLock.Lock()
	id := n.leader.roster.NextID()
	n.leader.roster = n.leader.roster.WithNewMember(id)
	tabs := n.leader.roster.IDs()
	n.coreLock.Unlock()

	n.logger.WithFields(logrus.Fields{
		"tab":    id,
		"target": env.SourceID,
		"tabs":   tabs,
	}).Debug("Assigning participant id")

	n.metrics.setLeader(true, len(tabs))
	n.notifyTabs(tabs)

	n.broadcast(envelope.NewAddNewTab(n.ids, n.name, env.SourceID, id, tabs))
}

// onAddNewTab adopts the roster announced by the leader, and the assigned id
// if the envelope targets us. Being assigned an id proves a leader exists, so
// it also cancels self-promotion.
func (n *Node) onAddNewTab(env *envelope.Envelope) {
	if !n.conf.Election {
		return
	}

	n.coreLock.Lock()
	if n.leader.isLeader {
		n.coreLock.Unlock()
		return
	}

	assigned := env.Target == n.ids.SourceID() && !n.leader.assigned
	if assigned {
		n.leader.selfID = env.Tab
		n.leader.assigned = true
	}

	n.leader.roster = roster.FromSlice(env.Tabs)
	size := n.leader.roster.Len()
	n.coreLock.Unlock()

	n.metrics.setLeader(false, size)

	if assigned {
		n.logger.WithField("tab", env.Tab).Debug("Got participant id")
		n.markAuthoritative()
	}
}

// onClose removes a departing participant. The leader then broadcasts the
// updated roster, naming itself in a change_main envelope.
func (n *Node) onClose(env *envelope.Envelope) {
	if !n.conf.Election {
		return
	}

	n.coreLock.Lock()
	if n.leader.assigned && env.Tab == n.leader.selfID {
		n.coreLock.Unlock()
		return
	}
	known := n.leader.roster.Contains(env.Tab)
	n.leader.roster = n.leader.roster.WithRemovedMember(env.Tab)
	isLeader := n.leader.isLeader
	selfID := n.leader.selfID
	tabs := n.leader.roster.IDs()
	n.coreLock.Unlock()

	n.metrics.setLeader(isLeader, len(tabs))

	if isLeader && known {
		n.notifyTabs(tabs)
		n.broadcast(envelope.NewChangeMain(n.ids, n.name, selfID, tabs))
	}
}

// onChangeMain adopts the roster of a departing leader. The named successor
// becomes leader; a node that wrongly believed it was leader steps down.
func (n *Node) onChangeMain(env *envelope.Envelope) {
	if !n.conf.Election {
		return
	}

	n.coreLock.Lock()
	n.leader.roster = roster.FromSlice(env.Tabs)
	named := n.leader.assigned && env.Tab == n.leader.selfID
	becomes := named && !n.leader.isLeader
	stepsDown := !named && n.leader.isLeader
	n.leader.isLeader = named
	selfID := n.leader.selfID
	size := n.leader.roster.Len()
	n.coreLock.Unlock()

	n.metrics.setLeader(named, size)

	if stepsDown {
		n.logger.WithField("leader", env.Tab).Warn("Another node was named leader, stepping down")
	}

	if becomes {
		n.logger.WithField("tab", selfID).Info("Became leader")
		if n.conf.OnBecomeMain != nil {
			n.conf.OnBecomeMain(selfID)
		}
	}
}

// depart announces that the node leaves. A leader also names its successor,
// the lowest surviving id.
func (n *Node) depart() error {
	if !n.conf.Election {
		return nil
	}

	n.coreLock.Lock()
	l := n.leader
	n.leader.isLeader = false
	n.coreLock.Unlock()

	if !l.assigned {
		return nil
	}

	n.broadcast(envelope.NewClose(n.ids, n.name, l.selfID))

	if l.isLeader {
		if next, rest, ok := l.roster.Successor(l.selfID); ok {
			n.logger.WithField("successor", next).Debug("Handing over leadership")
			n.broadcast(envelope.NewChangeMain(n.ids, n.name, next, rest.IDs()))
		}
	}

	n.metrics.setLeader(false, l.roster.Len())

	return nil
}
