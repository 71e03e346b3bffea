package scanner

import "whaleScope/internal/chain"

// ComputeRange returns the next range to scan. Without a checkpoint the scan
// starts window positions below head. Otherwise it resumes right after the
// checkpoint and covers at most window positions, so a chain that fell
// behind catches up over several cycles instead of skipping blocks.
func ComputeRange(checkpoint uint64, hasCheckpoint bool, head, window uint64) (chain.Range, bool) {
	if window == 0 {
		window = 1
	}
	if !hasCheckpoint {
		from := uint64(0)
		if head+1 > window {
			from = head + 1 - window
		}
		return chain.Range{From: from, To: head}, true
	}
	if checkpoint >= head {
		return chain.Range{}, false
	}
	to := head
	if head-checkpoint > window {
		to = checkpoint + window
	}
	return chain.Range{From: checkpoint + 1, To: to}, true
}
