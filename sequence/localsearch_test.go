package sequence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// greedyTrapCosts is a grid where cheapest-arc construction takes cheap arcs
// early (0->1, 1->3) and is then forced onto the expensive 3->2, yielding
// 0-1-3-2 at cost 53. A single Or-opt relocation reaches 0-2-1-3 at cost 15.
func greedyTrapCosts() [][]int {
	return [][]int{
		{0, 1, 10, 50},
		{50, 0, 50, 2},
		{50, 3, 0, 50},
		{50, 50, 50, 0},
	}
}

func TestApplyMoveReverse(t *testing.T) {
	src := []int{0, 1, 2, 3, 4}
	dst := applyMove(make([]int, 5), src, move{kind: moveReverse, i: 1, j: 3})
	assert.Equal(t, []int{0, 3, 2, 1, 4}, dst)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, src, "source untouched")
}

func TestApplyMoveRelocate(t *testing.T) {
	src := []int{0, 1, 2, 3, 4}

	forward := applyMove(make([]int, 5), src, move{kind: moveRelocate, i: 1, j: 3})
	assert.Equal(t, []int{0, 2, 3, 1, 4}, forward)

	backward := applyMove(make([]int, 5), src, move{kind: moveRelocate, i: 3, j: 1})
	assert.Equal(t, []int{0, 3, 1, 2, 4}, backward)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, src)
}

func TestEnumerateMoves(t *testing.T) {
	moves := enumerateMoves(4)
	// 3 reversals over positions 1..3 plus 6 single-node relocations.
	require.Len(t, moves, 9)
	for _, mv := range moves {
		assert.GreaterOrEqual(t, mv.i, 1, "anchor position never moves")
		assert.GreaterOrEqual(t, mv.j, 1)
	}
}

func TestMoveOrderingIsTotal(t *testing.T) {
	a := move{kind: moveReverse, i: 1, j: 2, cost: 10}
	b := move{kind: moveRelocate, i: 1, j: 2, cost: 10}
	c := move{kind: moveReverse, i: 1, j: 3, cost: 10}
	assert.True(t, a.better(b), "equal cost falls back to kind")
	assert.True(t, a.better(c), "then to position")
	assert.False(t, b.better(a))
	assert.True(t, move{cost: 9}.better(move{cost: 10}))
}

func TestLocalSearchEscapesGreedyTrap(t *testing.T) {
	m := matrixFromCosts(greedyTrapCosts())
	order, _, err := cheapestArcRoute(m, 0)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 3, 2}, order)
	require.Equal(t, 53, m.RouteCost(order))

	ls := localSearch{m: m, workers: 1, maxRounds: 100}
	out := ls.run(context.Background(), order, 53)
	assert.Equal(t, []int{0, 2, 1, 3}, out.order)
	assert.Equal(t, 15, out.cost)
	assert.Equal(t, 1, out.moves)
	assert.Equal(t, 2, out.rounds, "one improving round plus the converging one")
	assert.False(t, out.exhausted)
	assert.Equal(t, "converged", out.stopped)
}

func TestLocalSearchParallelMatchesSerial(t *testing.T) {
	// Pseudo-random but fixed grid; the move ordering must make worker
	// count irrelevant to the outcome.
	n := 9
	rows := make([][]int, n)
	for i := range rows {
		rows[i] = make([]int, n)
		for j := range rows[i] {
			if i != j {
				rows[i][j] = (i*7+j*13)%23 + 1
			}
		}
	}
	m := matrixFromCosts(rows)
	order, _, err := cheapestArcRoute(m, 0)
	require.NoError(t, err)
	base := m.RouteCost(order)

	serial := localSearch{m: m, workers: 1, maxRounds: 1000}.
		run(context.Background(), order, base)
	for _, workers := range []int{2, 4, 16} {
		parallel := localSearch{m: m, workers: workers, maxRounds: 1000}.
			run(context.Background(), order, base)
		assert.Equal(t, serial.order, parallel.order, "workers=%d", workers)
		assert.Equal(t, serial.cost, parallel.cost, "workers=%d", workers)
		assert.Equal(t, serial.rounds, parallel.rounds, "workers=%d", workers)
	}
}

func TestLocalSearchRespectsForbiddenArcs(t *testing.T) {
	// The tempting relocation toward 0-2-1-3 is blocked by a forbidden
	// arc, so the search must keep the constructed route.
	rows := greedyTrapCosts()
	rows[0][2] = Forbidden
	m := matrixFromCosts(rows)

	order := []int{0, 1, 3, 2}
	out := localSearch{m: m, workers: 1, maxRounds: 100}.
		run(context.Background(), order, m.RouteCost(order))
	assert.Equal(t, []int{0, 1, 3, 2}, out.order)
	assert.Zero(t, out.moves)
}

func TestLocalSearchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := matrixFromCosts(greedyTrapCosts())
	order := []int{0, 1, 3, 2}
	out := localSearch{m: m, workers: 1, maxRounds: 100}.run(ctx, order, 53)
	assert.Equal(t, order, out.order, "best-so-far comes back unchanged")
	assert.Equal(t, 53, out.cost)
	assert.True(t, out.exhausted)
	assert.Equal(t, "context", out.stopped)
	assert.Zero(t, out.rounds)
}

func TestLocalSearchTinyRoutes(t *testing.T) {
	m := matrixFromCosts([][]int{{0, 4}, {4, 0}})
	out := localSearch{m: m, workers: 4, maxRounds: 10}.
		run(context.Background(), []int{0, 1}, 4)
	assert.Equal(t, []int{0, 1}, out.order)
	assert.Equal(t, 4, out.cost)
	assert.Zero(t, out.rounds)
	assert.False(t, out.exhausted)
}
