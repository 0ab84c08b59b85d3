// Package align maps trade timestamps onto candle positions.
package align

// NearestIndex returns the index of the element of the ascending slice
// closest to target. Targets outside the slice clamp to the first or last
// index, and equal distances resolve to the lower index (including runs of
// duplicate values). It returns -1 for an empty slice.
func NearestIndex(sorted []int64, target int64) int {
	if len(sorted) == 0 {
		return -1
	}

	low, high := lowerBound(sorted, target)

	// high < low: sorted[high] < target <= sorted[low]
	if high < 0 {
		return 0
	}
	if low < len(sorted) && sorted[low]-target < target-sorted[high] {
		return low
	}
	first, _ := lowerBound(sorted, sorted[high])
	return first
}

// lowerBound narrows to the adjacent pair (high, low) with high+1 == low and
// low the first index whose value is >= target
func lowerBound(sorted []int64, target int64) (low, high int) {
	low, high = 0, len(sorted)-1
	for low <= high {
		mid := int(uint(low+high) >> 1)
		if sorted[mid] < target {
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return low, high
}
