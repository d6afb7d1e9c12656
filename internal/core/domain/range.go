package domain

import "fmt"

// BlockRange is an inclusive range of L1 block numbers. A nil End means
// "latest"; it is resolved exactly once at the start of a scan pass so a
// single pass never sees two different chain heads.
type BlockRange struct {
	Start uint64
	End   *uint64
}

// Resolve pins the range against the observed chain head.
func (r BlockRange) Resolve(latest uint64) (start, end uint64, err error) {
	start = r.Start
	end = latest
	if r.End != nil {
		end = *r.End
	}
	if end > latest {
		end = latest
	}
	if start > end {
		return 0, 0, fmt.Errorf("empty block range [%d, %d]", start, end)
	}
	return start, end, nil
}
