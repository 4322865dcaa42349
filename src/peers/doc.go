// Package peers manages the neighbour list of a networked context.
//
// Browsing contexts discover their neighbours from the window graph. Contexts
// that talk over a network channel have no such graph, so the neighbours are
// configured instead. Upon starting up, tabsync looks for a peers.json file in
// its data directory:
//
//  [
//    {"address": "127.0.0.1:1338", "origin": "https://app.example", "relation": "opener"},
//    {"address": "127.0.0.1:1339", "relation": "frame", "element_id": "sidebar"}
//  ]
//
// Entries without an origin inherit the origin of the local context. Entries
// without a relation are treated as popups.
package peers
