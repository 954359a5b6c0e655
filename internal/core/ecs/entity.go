package ecs

import "fmt"

const (
	innerShift = 7
	middleBits = 14
	slotMask   = BlockSize - 1

	// MaxEntities is the size of the shared entity space (128 roots slots
	// of 128 middles of 128 inners).
	MaxEntities = BlockSize * BlockSize * BlockSize
)

// Entity is a storage coordinate: an index into the shared entity space.
type Entity uint32

func (e Entity) split() (ri, mi, ii uint) {
	if e >= MaxEntities {
		panic(fmt.Sprintf("ecs: entity %d out of range (max %d)", e, MaxEntities-1))
	}
	return uint(e >> middleBits), uint(e>>innerShift) & slotMask, uint(e) & slotMask
}

func join(ri, mi, ii uint) Entity {
	return Entity(ri<<middleBits | mi<<innerShift | ii)
}

const (
	indexBits      = 22
	generationBits = 10
	indexMask      = 1<<indexBits - 1
)

// EntityID packs a 22-bit index with a 10-bit generation. The generation
// increments on release so stale handles fail Alive.
type EntityID uint32

func NewEntityID(index Entity, generation uint32) EntityID {
	return EntityID(generation<<indexBits | uint32(index)&indexMask)
}

func (id EntityID) Entity() Entity { return Entity(uint32(id) & indexMask) }
func (id EntityID) Generation() uint32 { return uint32(id) >> indexBits }

// Allocator hands out entity handles. Release is the out-of-band signal
// that every storage has cleared the slot and the index may be reused.
type Allocator interface {
	Create() EntityID
	Alive(id EntityID) bool
	Release(id EntityID)
}

// EntityPool is the default Allocator: generational indices over a LIFO
// free list.
type EntityPool struct {
	generations []uint32
	freeList    []Entity
	next        Entity
}

func NewEntityPool() *EntityPool {
	return &EntityPool{
		generations: make([]uint32, 0, 1024),
		freeList:    make([]Entity, 0, 256),
	}
}

func (p *EntityPool) Create() EntityID {
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return NewEntityID(idx, p.generations[idx])
	}
	idx := p.next
	if idx >= MaxEntities {
		panic("ecs: entity space exhausted")
	}
	p.next++
	p.generations = append(p.generations, 0)
	return NewEntityID(idx, 0)
}

func (p *EntityPool) Alive(id EntityID) bool {
	idx := id.Entity()
	if idx >= p.next {
		return false
	}
	return p.generations[idx] == id.Generation()
}

func (p *EntityPool) Release(id EntityID) {
	if !p.Alive(id) {
		return // stale handle
	}
	idx := id.Entity()
	p.generations[idx] = (p.generations[idx] + 1) & (1<<generationBits - 1)
	p.freeList = append(p.freeList, idx)
}

// Len returns the number of live entities.
func (p *EntityPool) Len() int { return int(p.next) - len(p.freeList) }
