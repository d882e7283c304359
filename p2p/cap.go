package p2p

import "sort"

// capRange is a contiguous, inclusive range of message ids [Lo, Hi]
// reserved for one negotiated sub-protocol.
type capRange struct {
	Lo, Hi uint64
}

// baseProtocolLength is the number of message ids (0..15) reserved for the
// Hello/Disconnect/Ping/Pong base wire protocol; sub-protocol ranges start
// at this offset.
const baseProtocolLength = 16

// SubProtocol describes one application-level protocol a local node
// supports, in the priority order used to allocate message-id ranges.
type SubProtocol struct {
	Name    string
	Version uint
	// Length is the number of message-ids this version of the protocol
	// reserves.
	Length uint64
}

// NegotiateCaps computes the capability range map for a connection: given
// the local node's supported sub-protocols (in priority order) and the
// peer's advertised capabilities, it picks, for each local protocol name,
// the highest mutually supported version, then allocates contiguous,
// disjoint id ranges starting at baseProtocolLength in local iteration
// order. Protocols with no matching peer capability are dropped.
func NegotiateCaps(local []SubProtocol, peerCaps []Cap) map[Cap]capRange {
	peerByName := make(map[string][]uint)
	for _, c := range peerCaps {
		peerByName[c.Name] = append(peerByName[c.Name], c.Version)
	}

	type byName struct {
		name    string
		entries []SubProtocol
	}
	grouped := make(map[string]*byName)
	var order []string
	for _, sp := range local {
		g, ok := grouped[sp.Name]
		if !ok {
			g = &byName{name: sp.Name}
			grouped[sp.Name] = g
			order = append(order, sp.Name)
		}
		g.entries = append(g.entries, sp)
	}

	ranges := make(map[Cap]capRange)
	offset := uint64(baseProtocolLength)
	for _, name := range order {
		g := grouped[name]
		peerVersions := peerByName[name]
		if len(peerVersions) == 0 {
			continue
		}
		best, ok := bestMutualVersion(g.entries, peerVersions)
		if !ok {
			continue
		}
		cap := Cap{Name: name, Version: best.Version}
		ranges[cap] = capRange{Lo: offset, Hi: offset + best.Length - 1}
		offset += best.Length
	}
	return ranges
}

// bestMutualVersion returns the local SubProtocol entry (for one name) with
// the highest version also present in peerVersions.
func bestMutualVersion(entries []SubProtocol, peerVersions []uint) (SubProtocol, bool) {
	peerSet := make(map[uint]bool, len(peerVersions))
	for _, v := range peerVersions {
		peerSet[v] = true
	}
	sorted := make([]SubProtocol, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version > sorted[j].Version })
	for _, e := range sorted {
		if peerSet[e.Version] {
			return e, true
		}
	}
	return SubProtocol{}, false
}

// rangeFor returns the capability whose range contains message id m, if any.
func rangeFor(ranges map[Cap]capRange, m uint64) (Cap, capRange, bool) {
	for c, r := range ranges {
		if m >= r.Lo && m <= r.Hi {
			return c, r, true
		}
	}
	return Cap{}, capRange{}, false
}
