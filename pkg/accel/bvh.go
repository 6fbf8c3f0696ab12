package accel

import (
	"math"
	"sort"

	"github.com/df07/go-raycasting-scene/pkg/core"
)

// primRef references one triangle of one attached geometry
type primRef struct {
	geomID   uint32
	primID   uint32
	bounds   core.AABB
	centroid core.Vec3
}

// bvhNode represents a node in the Bounding Volume Hierarchy
type bvhNode struct {
	bounds core.AABB
	left   *bvhNode
	right  *bvhNode
	prims  []primRef // Primitives for leaf nodes (nil for internal nodes)
}

func (n *bvhNode) isLeaf() bool {
	return n.prims != nil
}

// bvh is a Bounding Volume Hierarchy over every primitive of a scene
type bvh struct {
	root *bvhNode
}

// Leaf threshold: if we have this many or fewer primitives, store them in a leaf node
const leafThreshold = 8

// Depth at which a node becomes a leaf regardless of size
const maxDepth = 64

// newBVH builds a hierarchy over prims. The slice is reordered in place.
func newBVH(prims []primRef) *bvh {
	if len(prims) == 0 {
		return &bvh{root: nil}
	}
	return &bvh{root: buildBVH(prims, 0)}
}

// buildBVH recursively builds the BVH using midpoint splits on the longest
// centroid axis, falling back to a median split when the midpoint separates nothing.
func buildBVH(prims []primRef, depth int) *bvhNode {
	bounds := core.EmptyAABB()
	centroidBounds := core.EmptyAABB()
	for i := range prims {
		bounds = bounds.Union(prims[i].bounds)
		centroidBounds = centroidBounds.Extend(prims[i].centroid)
	}
	bounds = bounds.Expand(boundsPadding(bounds))

	if len(prims) <= leafThreshold || depth >= maxDepth {
		return &bvhNode{bounds: bounds, prims: prims}
	}

	axis, splitPos := findBestSplitSimple(centroidBounds)
	if axis == -1 {
		// Every centroid coincides; nothing can separate them.
		return &bvhNode{bounds: bounds, prims: prims}
	}

	mid := partitionPrims(prims, axis, splitPos)
	if mid == 0 || mid == len(prims) {
		sortPrimsByAxis(prims, axis)
		mid = len(prims) / 2
	}

	return &bvhNode{
		bounds: bounds,
		left:   buildBVH(prims[:mid], depth+1),
		right:  buildBVH(prims[mid:], depth+1),
	}
}

// boundsPadding widens node bounds slightly so slab tests never reject a ray
// that the exact triangle test would accept.
func boundsPadding(bounds core.AABB) float64 {
	extent := math.Max(
		math.Max(math.Abs(bounds.Min.X), math.Abs(bounds.Max.X)),
		math.Max(
			math.Max(math.Abs(bounds.Min.Y), math.Abs(bounds.Max.Y)),
			math.Max(math.Abs(bounds.Min.Z), math.Abs(bounds.Max.Z)),
		),
	)
	return 1e-7 * (1 + extent)
}

// findBestSplitSimple picks the longest axis of the centroid bounds and its midpoint
func findBestSplitSimple(centroidBounds core.AABB) (bestAxis int, splitPos float64) {
	bestAxis = centroidBounds.LongestAxis()
	minVal := centroidBounds.Min.Axis(bestAxis)
	maxVal := centroidBounds.Max.Axis(bestAxis)

	if maxVal <= minVal {
		return -1, 0
	}
	return bestAxis, (minVal + maxVal) * 0.5
}

// partitionPrims moves primitives with centroid below splitPos to the front and
// returns the number of such primitives
func partitionPrims(prims []primRef, axis int, splitPos float64) int {
	i, j := 0, len(prims)-1
	for i <= j {
		if prims[i].centroid.Axis(axis) < splitPos {
			i++
			continue
		}
		prims[i], prims[j] = prims[j], prims[i]
		j--
	}
	return i
}

// sortPrimsByAxis sorts primitives by their centroid along the specified axis
func sortPrimsByAxis(prims []primRef, axis int) {
	sort.Slice(prims, func(i, j int) bool {
		return prims[i].centroid.Axis(axis) < prims[j].centroid.Axis(axis)
	})
}

// getStats returns statistics about the BVH structure
func (b *bvh) getStats() bvhStats {
	if b.root == nil {
		return bvhStats{}
	}

	stats := bvhStats{}
	b.collectStats(b.root, 0, &stats)

	if stats.leafNodes > 0 {
		stats.avgDepth = stats.avgDepth / float64(stats.leafNodes)
	}

	return stats
}

// bvhStats contains statistics about the BVH structure
type bvhStats struct {
	totalNodes  int
	leafNodes   int
	maxDepth    int
	avgDepth    float64
	totalPrims  int
	maxLeafSize int
}

// collectStats recursively collects statistics about the BVH
func (b *bvh) collectStats(node *bvhNode, depth int, stats *bvhStats) {
	stats.totalNodes++

	if depth > stats.maxDepth {
		stats.maxDepth = depth
	}

	if node.isLeaf() {
		stats.leafNodes++
		stats.totalPrims += len(node.prims)
		stats.maxLeafSize = max(stats.maxLeafSize, len(node.prims))
		stats.avgDepth += float64(depth)
		return
	}

	if node.left != nil {
		b.collectStats(node.left, depth+1, stats)
	}
	if node.right != nil {
		b.collectStats(node.right, depth+1, stats)
	}
}
