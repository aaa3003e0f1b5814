package memory

// pool is a fixed-capacity LIFO free list of SmallBlockSize blocks.
type pool struct {
	blocks [SmallPoolCapacity][]byte
	free   int
	hits   int
	misses int
}

func (p *pool) get() []byte {
	if p.free > 0 {
		p.free--
		block := p.blocks[p.free]
		p.blocks[p.free] = nil
		p.hits++
		return block
	}
	p.misses++
	return nil
}

// put returns false when the pool is full and the block was dropped.
func (p *pool) put(block []byte) bool {
	if p.free >= SmallPoolCapacity {
		return false
	}
	p.blocks[p.free] = block
	p.free++
	return true
}

func (p *pool) len() int {
	return p.free
}
