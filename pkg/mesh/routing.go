package mesh

import "time"

// RoutingTableCapacity is the fixed number of destinations a node can track
// (spec.md §4.9): "Fixed-size table of capacity 10."
const RoutingTableCapacity = 10

// RouteTTL is how long an entry may go unrefreshed before find_next_hop
// treats it as stale (spec.md §3, "RoutingTable ... entries age out after 5
// minutes of inactivity").
const RouteTTL = 5 * time.Minute

// hysteresisJumpMargin and hysteresisBandFloor implement spec.md §4.9's
// two-part replacement rule: a candidate with RSSI more than
// hysteresisJumpMargin dB stronger always wins outright; one within
// [-hysteresisBandFloor, +hysteresisJumpMargin] of the incumbent wins only
// if it also has fewer hops. Anything weaker than the floor never replaces
// a working route, so a single fading neighbor doesn't flap the table.
const (
	hysteresisJumpMargin = 12
	hysteresisBandFloor  = 6
)

// RouteEntry is one row of the fixed routing table, exported for
// diagnostics (RoutingTable.Snapshot) and the coordinator's topology view.
type RouteEntry struct {
	Dest     DeviceID
	NextHop  DeviceID
	HopCount uint8
	RSSI     int8
	LastSeen time.Time
	Active   bool
}

// RoutingTable is the fixed-size table a node uses to pick a next hop
// toward a destination it has heard from, directly or via relay
// (spec.md §4.9). Slots are allocated in a fixed-capacity array the way the
// spec describes; "oldest" eviction among all-zero-last_seen cold slots is
// resolved by tracking explicit insertion order rather than relying on the
// zero value (spec.md §9, DESIGN.md).
//
// Not safe for concurrent use; the device loop owns it single-threaded.
type RoutingTable struct {
	slots [RoutingTableCapacity]RouteEntry
	index map[DeviceID]int // dest -> slot, only for active slots
	seq   [RoutingTableCapacity]uint64
	next  uint64
	now   func() time.Time
}

// NewRoutingTable returns a routing table with all slots inactive. now
// defaults to time.Now; tests inject a deterministic clock.
func NewRoutingTable(now func() time.Time) *RoutingTable {
	if now == nil {
		now = time.Now
	}
	return &RoutingTable{index: make(map[DeviceID]int, RoutingTableCapacity), now: now}
}

// Len returns the number of destinations currently active.
func (rt *RoutingTable) Len() int { return len(rt.index) }

// Update records a candidate route to dest via nextHop with hopCount hops
// and signal strength rssi, observed from a just-received packet. Callers
// are expected to have already applied spec.md §4.9's flood-depth guard
// ("skip if packet.hop_count >= MAX_HOPS-1") before calling Update; see
// Router.HandleInbound.
//
// Replacement rule (spec.md §4.9, testable property 8): given an existing
// route with RSSI r, a candidate with RSSI r' replaces it iff r' > r+12, or
// r-6 <= r' <= r+12 and the candidate has fewer hops. It reports whether
// the candidate was adopted.
func (rt *RoutingTable) Update(dest, nextHop DeviceID, hopCount uint8, rssi int8) bool {
	now := rt.now()

	if slot, ok := rt.index[dest]; ok {
		e := &rt.slots[slot]
		if !candidateReplaces(rssi, hopCount, e.RSSI, e.HopCount) {
			e.LastSeen = now
			return false
		}
		e.NextHop = nextHop
		e.HopCount = hopCount
		e.RSSI = rssi
		e.LastSeen = now
		rt.seq[slot] = rt.next
		rt.next++
		return true
	}

	slot := rt.freeSlot()
	rt.slots[slot] = RouteEntry{
		Dest:     dest,
		NextHop:  nextHop,
		HopCount: hopCount,
		RSSI:     rssi,
		LastSeen: now,
		Active:   true,
	}
	rt.seq[slot] = rt.next
	rt.next++
	rt.index[dest] = slot
	return true
}

// candidateReplaces implements spec.md §4.9's two-clause hysteresis rule.
func candidateReplaces(candRSSI int8, candHops uint8, incRSSI int8, incHops uint8) bool {
	if int(candRSSI) > int(incRSSI)+hysteresisJumpMargin {
		return true
	}
	inBand := int(candRSSI) >= int(incRSSI)-hysteresisBandFloor && int(candRSSI) <= int(incRSSI)+hysteresisJumpMargin
	return inBand && candHops < incHops
}

// freeSlot returns the first inactive slot, or evicts the slot with the
// oldest insertion sequence if the table is full (spec.md §4.9).
func (rt *RoutingTable) freeSlot() int {
	for i := range rt.slots {
		if !rt.slots[i].Active {
			return i
		}
	}
	oldest := 0
	for i := 1; i < RoutingTableCapacity; i++ {
		if rt.seq[i] < rt.seq[oldest] {
			oldest = i
		}
	}
	delete(rt.index, rt.slots[oldest].Dest)
	return oldest
}

// FindNextHop returns the next hop toward dest, per spec.md §4.9:
// find_next_hop returns the stored next_hop_id iff the entry is active and
// has been refreshed within RouteTTL; otherwise it marks the entry inactive
// and reports "no route".
func (rt *RoutingTable) FindNextHop(dest DeviceID) (nextHop DeviceID, ok bool) {
	slot, found := rt.index[dest]
	if !found {
		return DeviceID{}, false
	}
	e := &rt.slots[slot]
	if rt.now().Sub(e.LastSeen) >= RouteTTL {
		e.Active = false
		delete(rt.index, dest)
		return DeviceID{}, false
	}
	return e.NextHop, true
}

// Lookup is like FindNextHop but also returns the hop count, without
// applying TTL eviction — used by diagnostics and by the outbound pipeline
// when it only needs to know whether *any* route is known.
func (rt *RoutingTable) Lookup(dest DeviceID) (nextHop DeviceID, hopCount uint8, ok bool) {
	slot, found := rt.index[dest]
	if !found {
		return DeviceID{}, 0, false
	}
	e := rt.slots[slot]
	return e.NextHop, e.HopCount, true
}

// Snapshot returns a copy of every active entry, for diagnostics and tests
// asserting the hysteresis property without reaching into internals.
func (rt *RoutingTable) Snapshot() []RouteEntry {
	out := make([]RouteEntry, 0, len(rt.index))
	for _, slot := range rt.index {
		out = append(out, rt.slots[slot])
	}
	return out
}
