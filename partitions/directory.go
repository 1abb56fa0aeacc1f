package partitions

import (
	"context"
	"github.com/notargets/PDData/comm"
	"github.com/pkg/errors"
)

// directory resolves which rank holds a global ID of a map. Entries are
// spread over ranks by gid % size; when several ranks hold the same ID the
// lowest one is recorded.
type directory struct {
	c       *comm.Comm
	entries map[int]dirEntry
}

type dirEntry struct {
	owner int
	size  int
}

func newDirectory(ctx context.Context, m *Map) (*directory, error) {
	c := m.comm
	n := c.Size()

	send := make([][]int, n)
	for lid, gid := range m.gids {
		d := gid % n
		send[d] = append(send[d], gid, m.sizes[lid])
	}
	recv, err := comm.AllToAllV(ctx, c, send)
	if err != nil {
		return nil, err
	}

	dir := &directory{c: c, entries: map[int]dirEntry{}}
	// recv is indexed by source rank, so the first registration wins
	for src, pairs := range recv {
		for i := 0; i+1 < len(pairs); i += 2 {
			gid, size := pairs[i], pairs[i+1]
			if _, ok := dir.entries[gid]; ok {
				continue
			}
			dir.entries[gid] = dirEntry{owner: src, size: size}
		}
	}
	return dir, nil
}

// lookup returns the holding rank and element size of every gid, -1 as the
// rank for IDs no rank holds. It is collective.
func (d *directory) lookup(ctx context.Context, gids []int) (owners, sizes []int, err error) {
	n := d.c.Size()

	queries := make([][]int, n)
	index := make([][]int, n) // position in gids of every query sent to a rank
	for i, gid := range gids {
		r := gid % n
		queries[r] = append(queries[r], gid)
		index[r] = append(index[r], i)
	}
	incoming, err := comm.AllToAllV(ctx, d.c, queries)
	if err != nil {
		return nil, nil, err
	}

	replies := make([][]int, n)
	for src, qs := range incoming {
		for _, gid := range qs {
			e, ok := d.entries[gid]
			if !ok {
				replies[src] = append(replies[src], -1, 0)
				continue
			}
			replies[src] = append(replies[src], e.owner, e.size)
		}
	}
	answers, err := comm.AllToAllV(ctx, d.c, replies)
	if err != nil {
		return nil, nil, err
	}

	owners = make([]int, len(gids))
	sizes = make([]int, len(gids))
	for r, ans := range answers {
		if len(ans) != 2*len(index[r]) {
			return nil, nil, errors.Wrapf(ErrMapMismatch, "directory rank %d answered %d values for %d queries",
				r, len(ans), len(index[r]))
		}
		for k, i := range index[r] {
			owners[i] = ans[2*k]
			sizes[i] = ans[2*k+1]
		}
	}
	return owners, sizes, nil
}
