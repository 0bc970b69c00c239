package permute

// universeSize returns the number of distinct rearrangements available for
// k studies: 2^k sign patterns for intercept-only designs, k! label
// orderings otherwise. ok is false when the count overflows int64.
func universeSize(k int, hasMods bool) (int64, bool) {
	if !hasMods {
		if k > MAX_EXACT_SIGN_STUDIES {
			return 0, false
		}
		return int64(1) << uint(k), true
	}
	if k > MAX_EXACT_ORDER_STUDIES {
		return 0, false
	}
	u := int64(1)
	for i := 2; i <= k; i++ {
		u *= int64(i)
	}
	return u, true
}

// identity returns [0, 1, ..., k-1].
func identity(k int) []int {
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// nextPermutation advances idx to the next lexicographic ordering in place.
// Returns false once the final (descending) ordering has been consumed.
// Starting from the identity and calling until false visits all k!
// orderings exactly once.
func nextPermutation(idx []int) bool {
	i := len(idx) - 2
	for i >= 0 && idx[i] >= idx[i+1] {
		i--
	}
	if i < 0 {
		return false
	}
	j := len(idx) - 1
	for idx[j] <= idx[i] {
		j--
	}
	idx[i], idx[j] = idx[j], idx[i]
	for l, r := i+1, len(idx)-1; l < r; l, r = l+1, r-1 {
		idx[l], idx[r] = idx[r], idx[l]
	}
	return true
}
