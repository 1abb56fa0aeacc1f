package utils

// BlockGIDs returns the IDs rank owns when n points are split into
// consecutive blocks, the first n%size ranks holding one extra point
func BlockGIDs(n, size, rank int) []int {
	per, extra := n/size, n%size
	first := rank*per + min(rank, extra)
	count := per
	if rank < extra {
		count++
	}
	gids := make([]int, count)
	for i := range gids {
		gids[i] = first + i
	}
	return gids
}

// CyclicGIDs returns the IDs rank owns when n points are dealt out cyclically
func CyclicGIDs(n, size, rank int) []int {
	var gids []int
	for gid := rank; gid < n; gid += size {
		gids = append(gids, gid)
	}
	return gids
}
