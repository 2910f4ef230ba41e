package exchange

import "math"

// BlockNumberSequence is the ordered set of block numbers a header query
// enumerates: Start, then every (Skip+1)-th block in the query direction, up
// to MaxLength terms. A reverse sequence ends early rather than going below
// zero, a forward one rather than overflowing.
//
// The tracker and the header validator both derive their expectations from
// this type.
type BlockNumberSequence struct {
	Start     uint64
	MaxLength uint64
	Skip      uint64
	Reverse   bool
}

// Len returns the number of terms in the sequence.
func (s BlockNumberSequence) Len() uint64 {
	if s.MaxLength == 0 {
		return 0
	}
	if s.Skip == math.MaxUint64 {
		// the stride does not fit a uint64, so only the first term exists
		return 1
	}

	stride := s.Skip + 1
	var room uint64
	if s.Reverse {
		room = s.Start / stride
	} else {
		room = (math.MaxUint64 - s.Start) / stride
	}
	if room >= s.MaxLength-1 {
		return s.MaxLength
	}
	return room + 1
}

// At returns the i-th term. It panics if i is out of range.
func (s BlockNumberSequence) At(i uint64) uint64 {
	if i >= s.Len() {
		panic("block number sequence index out of range")
	}
	if i == 0 {
		return s.Start
	}
	if s.Reverse {
		return s.Start - i*(s.Skip+1)
	}
	return s.Start + i*(s.Skip+1)
}

// Numbers returns every term of the sequence.
func (s BlockNumberSequence) Numbers() []uint64 {
	n := s.Len()
	numbers := make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		numbers = append(numbers, s.At(i))
	}
	return numbers
}

// LenUpTo returns the number of terms that do not exceed head.
func (s BlockNumberSequence) LenUpTo(head uint64) uint64 {
	n := s.Len()
	if n == 0 {
		return 0
	}
	if s.Reverse {
		if s.Start <= head {
			return n
		}
		if s.Skip == math.MaxUint64 {
			return 0
		}
		stride := s.Skip + 1
		// index of the first term at or below head
		first := (s.Start - head) / stride
		if (s.Start-head)%stride != 0 {
			first++
		}
		if first >= n {
			return 0
		}
		return n - first
	}

	if s.Start > head {
		return 0
	}
	if s.Skip == math.MaxUint64 {
		return 1
	}
	within := (head-s.Start)/(s.Skip+1) + 1
	if within < n {
		return within
	}
	return n
}
