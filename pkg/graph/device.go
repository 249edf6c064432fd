package graph

import "runtime"

// Residency tells where the addressable copy of a graph lives.
type Residency int

const (
	HostResident Residency = iota
	DeviceResident
)

func (r Residency) String() string {
	switch r {
	case HostResident:
		return "host"
	case DeviceResident:
		return "device"
	default:
		return "unknown"
	}
}

// Device is the engine-addressable mirror of a graph: its own copy of the CSR
// arrays, the edge-oriented arrays used for conflict counting and the worker
// partitioning used by every parallel phase.
type Device struct {
	graph *CompactGraph
	stats Stats

	// EdgeSrc[k], EdgeDst[k] is the k-th undirected edge, EdgeSrc[k] < EdgeDst[k].
	EdgeSrc []uint32
	EdgeDst []uint32

	Workers   int
	ChunkSize int
}

// DeviceOptions control the partitioning of a device mirror.
type DeviceOptions struct {
	Workers   int // <= 0 means runtime.NumCPU()
	ChunkSize int // <= 0 means 1024
}

// ToDevice copies the host graph into a new device mirror. The host keeps its
// own copy.
func (h *Host) ToDevice(opts DeviceOptions) *Device {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1024
	}

	g := h.graph.Clone()
	d := &Device{
		graph:     g,
		stats:     h.stats,
		Workers:   opts.Workers,
		ChunkSize: opts.ChunkSize,
	}

	// One entry per undirected edge: the u < v half of the symmetric lists.
	half := g.EdgeCount / 2
	d.EdgeSrc = make([]uint32, 0, half)
	d.EdgeDst = make([]uint32, 0, half)
	for u := uint32(0); u < g.NodeCount; u++ {
		for _, v := range g.Neighbors(u) {
			if u < v {
				d.EdgeSrc = append(d.EdgeSrc, u)
				d.EdgeDst = append(d.EdgeDst, v)
			}
		}
	}
	return d
}

// ToHost copies the device mirror back into a host-resident graph.
func (d *Device) ToHost() *Host {
	return &Host{graph: d.graph.Clone(), stats: d.stats}
}

// Graph returns the mirrored CompactGraph. It is read-only for the lifetime of
// the device.
func (d *Device) Graph() *CompactGraph { return d.graph }

func (d *Device) Stats() Stats { return d.stats }
func (d *Device) NodeCount() uint32 { return d.graph.NodeCount }
func (d *Device) ConflictEdges() int { return len(d.EdgeSrc) }
func (d *Device) Residency() Residency { return DeviceResident }
