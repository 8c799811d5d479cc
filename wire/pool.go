package wire

import "sync"

// DefaultRegionSize is the size of a pooled fixed region. Calls whose
// estimate fits never allocate a buffer.
const DefaultRegionSize = 256

// Pool hands out fixed-region outputs of one size.
type Pool struct {
	regions    sync.Pool
	regionSize int
}

// NewPool creates a pool of regions of the given size.
func NewPool(regionSize int) *Pool {
	if regionSize <= 0 {
		regionSize = DefaultRegionSize
	}
	p := &Pool{regionSize: regionSize}
	p.regions.New = func() any {
		buf := make([]byte, regionSize)
		return &buf
	}
	return p
}

// RegionSize returns the size of the pooled regions.
func (p *Pool) RegionSize() int {
	return p.regionSize
}

// Acquire returns an output for a call whose encoded size is estimated at
// estimate bytes: a pooled fixed region when it fits, a heap buffer of the
// estimated size otherwise.
func (p *Pool) Acquire(estimate int) *Output {
	if estimate > p.regionSize {
		return NewOutput(estimate)
	}
	region := p.regions.Get().(*[]byte)
	o := NewFixedOutput(*region)
	o.pool = p
	o.region = region
	return o
}

func (p *Pool) put(region *[]byte) {
	if region == nil || cap(*region) != p.regionSize {
		return // reject foreign sizes
	}
	*region = (*region)[:p.regionSize]
	p.regions.Put(region)
}

var defaultPool = NewPool(DefaultRegionSize)

// Acquire takes an output from the default pool.
func Acquire(estimate int) *Output {
	return defaultPool.Acquire(estimate)
}
