package invariant

// reductionChunk is the fixed chunk width used to partition reduction axes.
// Partial sums are produced per chunk and combined in chunk order, so together
// with plan the constant pins down the accumulation order for a given axis
// length.
const reductionChunk = 512

// plan is the fixed partitioning of a reduction axis. It is derived from the
// axis length alone, so two invocations over the same logical shape always
// reduce in the same order no matter what else is batched alongside them.
type plan struct {
	length int
	chunk  int
	chunks int
}

// planReduction builds the plan for a reduction axis of the given length.
func planReduction(length int) plan {
	if length <= 0 {
		return plan{length: length, chunk: reductionChunk, chunks: 0}
	}
	return plan{
		length: length,
		chunk:  reductionChunk,
		chunks: (length + reductionChunk - 1) / reductionChunk,
	}
}

// bounds returns the [start, end) element range of chunk i. The final chunk
// carries the tail, whose size depends only on the axis length.
func (p plan) bounds(i int) (start, end int) {
	start = i * p.chunk
	end = start + p.chunk
	if end > p.length {
		end = p.length
	}
	return start, end
}
