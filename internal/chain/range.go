package chain

import "fmt"

// Range is an inclusive block or slot range.
type Range struct {
	From uint64
	To   uint64
}

// Len returns the number of positions in r.
func (r Range) Len() uint64 {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// SplitRange splits a range into chunks of at most size positions.
func SplitRange(from, to, size uint64) ([]Range, error) {
	if size == 0 {
		return nil, fmt.Errorf("chunk size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to must be >= from")
	}

	ranges := make([]Range, 0, (to-from)/size+1)
	start := from
	for {
		end := to
		if to-start >= size {
			end = start + size - 1
		}
		ranges = append(ranges, Range{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}
