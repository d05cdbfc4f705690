// Package peer implements the ordered registry of remote coordinators
// this process knows about, with round-robin selection.
package peer

import "container/list"

// Peer is one remote coordinator reachable by TCP.
type Peer struct {
	Host string
	Port uint16

	elem *list.Element
}

// Registry is a map keyed by host, plus a doubly-linked list giving
// insertion/use order. Insert always moves a host to the tail
// ("most-recently-seen"); Rotate pops the head and appends it to the
// tail, giving every peer a fair share of outgoing job offers.
type Registry struct {
	byHost map[string]*Peer
	order  *list.List
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byHost: make(map[string]*Peer),
		order:  list.New(),
	}
}

// Insert adds or refreshes a peer, unlinking any prior entry for that
// host and appending it to the tail.
func (r *Registry) Insert(host string, port uint16) *Peer {
	if p, ok := r.byHost[host]; ok {
		r.order.Remove(p.elem)
	}
	p := &Peer{Host: host, Port: port}
	p.elem = r.order.PushBack(p)
	r.byHost[host] = p
	return p
}

// Remove drops a peer by host, if present.
func (r *Registry) Remove(host string) {
	p, ok := r.byHost[host]
	if !ok {
		return
	}
	r.order.Remove(p.elem)
	delete(r.byHost, host)
}

// Len reports the number of known peers.
func (r *Registry) Len() int { return r.order.Len() }

// Rotate pops the first (oldest-used) peer and moves it to the tail,
// returning it. It reports ok=false when the registry is empty.
func (r *Registry) Rotate() (p *Peer, ok bool) {
	front := r.order.Front()
	if front == nil {
		return nil, false
	}
	peer := front.Value.(*Peer)
	r.order.MoveToBack(front)
	return peer, true
}

// All returns every known peer in round-robin order, for
// introspection/metrics — it never mutates ordering.
func (r *Registry) All() []*Peer {
	peers := make([]*Peer, 0, r.order.Len())
	for e := r.order.Front(); e != nil; e = e.Next() {
		peers = append(peers, e.Value.(*Peer))
	}
	return peers
}
