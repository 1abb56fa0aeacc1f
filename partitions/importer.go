package partitions

import (
	"context"
	"fmt"
	"github.com/notargets/PDData/comm"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Importer moves element data laid out on a source map onto a target map over
// the same global IDs. Target elements already present in the local source are
// copied in place; every other target element is picked by the lowest rank
// holding it in the source map and placed on arrival.
type Importer struct {
	target *Map
	source *Map

	// Local copies: source element permuteFrom[i] -> target element permuteTo[i]
	permuteFrom []int
	permuteTo   []int

	// Pick/place indices per peer rank
	pick  [][]int // [targetRank] source LIDs sent to targetRank
	place [][]int // [sourceRank] target LIDs filled from sourceRank
}

// NewImporter builds the exchange plan filling target from source. It is
// collective over the maps' communicator. Every target global ID must exist in
// the source map on some rank with the same element size.
func NewImporter(ctx context.Context, target, source *Map) (*Importer, error) {
	if target == nil || source == nil {
		return nil, errors.Wrap(ErrMapMismatch, "importer needs both a target and a source map")
	}
	if target.comm != source.comm {
		return nil, errors.Wrap(ErrMapMismatch, "target and source maps live on different communicators")
	}

	c := target.comm
	imp := &Importer{
		target: target,
		source: source,
		pick:   make([][]int, c.Size()),
		place:  make([][]int, c.Size()),
	}

	// Errors found locally are held until the collective steps are done
	var localErr error
	keep := func(err error) {
		if localErr == nil {
			localErr = err
		}
	}

	var remote []int // target LIDs that need data from another rank
	for tlid, gid := range target.gids {
		slid := source.LID(gid)
		if slid < 0 {
			remote = append(remote, tlid)
			continue
		}
		if source.sizes[slid] != target.sizes[tlid] {
			keep(errors.Wrapf(ErrMapMismatch, "rank %d: global id %d has size %d in source, %d in target",
				c.Rank(), gid, source.sizes[slid], target.sizes[tlid]))
			continue
		}
		imp.permuteFrom = append(imp.permuteFrom, slid)
		imp.permuteTo = append(imp.permuteTo, tlid)
	}

	dir, err := newDirectory(ctx, source)
	if err != nil {
		return nil, err
	}
	remoteGIDs := lo.Map(remote, func(tlid int, _ int) int { return target.gids[tlid] })
	owners, sizes, err := dir.lookup(ctx, remoteGIDs)
	if err != nil {
		return nil, err
	}

	requests := make([][]int, c.Size())
	for i, tlid := range remote {
		gid := target.gids[tlid]
		switch {
		case owners[i] < 0:
			keep(errors.Wrapf(ErrLookup, "rank %d: global id %d is not held by any rank of the source map",
				c.Rank(), gid))
			continue
		case sizes[i] != target.sizes[tlid]:
			keep(errors.Wrapf(ErrMapMismatch, "rank %d: global id %d has size %d in source, %d in target",
				c.Rank(), gid, sizes[i], target.sizes[tlid]))
			continue
		}
		requests[owners[i]] = append(requests[owners[i]], gid)
		imp.place[owners[i]] = append(imp.place[owners[i]], tlid)
	}

	incoming, err := comm.AllToAllV(ctx, c, requests)
	if err != nil {
		return nil, err
	}
	for requester, gids := range incoming {
		for _, gid := range gids {
			slid := source.LID(gid)
			if slid < 0 {
				keep(errors.Wrapf(ErrLookup, "rank %d: asked for global id %d it does not hold", c.Rank(), gid))
				continue
			}
			imp.pick[requester] = append(imp.pick[requester], slid)
		}
	}

	if localErr != nil {
		return nil, localErr
	}
	return imp, nil
}

// Target returns the map the importer fills.
func (imp *Importer) Target() *Map { return imp.target }

// Source returns the map the importer reads.
func (imp *Importer) Source() *Map { return imp.source }

// NumPermuteIDs returns the number of target elements copied locally.
func (imp *Importer) NumPermuteIDs() int { return len(imp.permuteTo) }

// NumRemoteIDs returns the number of target elements received from other ranks.
func (imp *Importer) NumRemoteIDs() int {
	return lo.SumBy(imp.place, func(lids []int) int { return len(lids) })
}

// NumExportIDs returns the number of source elements sent to other ranks.
func (imp *Importer) NumExportIDs() int {
	return lo.SumBy(imp.pick, func(lids []int) int { return len(lids) })
}

// GetPickIndices returns the source LIDs sent to targetRank
func (imp *Importer) GetPickIndices(targetRank int) []int {
	if targetRank < 0 || targetRank >= len(imp.pick) {
		return nil
	}
	return imp.pick[targetRank]
}

// GetPlaceIndices returns the target LIDs filled from sourceRank
func (imp *Importer) GetPlaceIndices(sourceRank int) []int {
	if sourceRank < 0 || sourceRank >= len(imp.place) {
		return nil
	}
	return imp.place[sourceRank]
}

// Verify checks index validity and that every target element is covered
// exactly once
func (imp *Importer) Verify() error {
	// Verify 1: Local validity - all pick indices are within the source map
	for r, lids := range imp.pick {
		for _, lid := range lids {
			if lid < 0 || lid >= imp.source.NumMyElements() {
				return fmt.Errorf("invalid pick index %d for rank %d (max %d)",
					lid, r, imp.source.NumMyElements()-1)
			}
		}
	}

	// Verify 2: Coverage - permute and place indices hit every target element once
	covered := make([]int, imp.target.NumMyElements())
	for _, lid := range imp.permuteTo {
		covered[lid]++
	}
	for _, lids := range imp.place {
		for _, lid := range lids {
			if lid < 0 || lid >= len(covered) {
				return fmt.Errorf("invalid place index %d (max %d)", lid, len(covered)-1)
			}
			covered[lid]++
		}
	}
	for lid, n := range covered {
		if n != 1 {
			return fmt.Errorf("coverage error: target element %d (gid %d) filled %d times",
				lid, imp.target.GID(lid), n)
		}
	}

	return nil
}
