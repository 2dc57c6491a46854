package core

// dib is the decoded-instruction-buffer cache: a small set-associative
// table keyed on a window of PC values, modeling the decode-bypass cache
// original_source's ooo_cpu.h calls the DIB. A hit lets promote_to_decode
// skip the decode buffer's visibility delay entirely (spec.md §4.5 step
// 7's "hitting the DIB bypasses the decode delay"); this package supplies
// no decode-latency estimate beyond that, since nothing downstream of
// fetch needs the actual decoded micro-ops.
type dib struct {
	sets, ways, window int
	tags               [][]uint64
	valid              [][]bool
	nextWay            []int // round-robin replacement pointer per set
}

func newDIB(sets, ways, window int) *dib {
	if window <= 0 {
		window = 1
	}
	d := &dib{sets: sets, ways: ways, window: window}
	d.tags = make([][]uint64, sets)
	d.valid = make([][]bool, sets)
	d.nextWay = make([]int, sets)
	for s := 0; s < sets; s++ {
		d.tags[s] = make([]uint64, ways)
		d.valid[s] = make([]bool, ways)
	}
	return d
}

func (d *dib) tagOf(pc uint64) uint64 { return pc / uint64(d.window) }
func (d *dib) setOf(tag uint64) int   { return int(tag % uint64(d.sets)) }

// Hit reports whether pc's window is already resident, without installing.
func (d *dib) Hit(pc uint64) bool {
	tag := d.tagOf(pc)
	set := d.setOf(tag)
	for w := 0; w < d.ways; w++ {
		if d.valid[set][w] && d.tags[set][w] == tag {
			return true
		}
	}
	return false
}

// Install records pc's window as resident, evicting round-robin if the set
// is full. A no-op if already resident.
func (d *dib) Install(pc uint64) {
	tag := d.tagOf(pc)
	set := d.setOf(tag)
	for w := 0; w < d.ways; w++ {
		if d.valid[set][w] && d.tags[set][w] == tag {
			return
		}
	}
	for w := 0; w < d.ways; w++ {
		if !d.valid[set][w] {
			d.valid[set][w] = true
			d.tags[set][w] = tag
			return
		}
	}
	w := d.nextWay[set]
	d.tags[set][w] = tag
	d.valid[set][w] = true
	d.nextWay[set] = (w + 1) % d.ways
}
