package engine

import "github.com/roach88/cosim/internal/payload"

// Action is a pending command for a peripheral.
type Action struct {
	Event   string
	Payload payload.Value
}

// actionQueue holds actions released by the script but not yet consumed.
//
// Each peripheral has its own FIFO. drain hands the whole FIFO to the
// caller and leaves it empty, so every action is delivered exactly once.
type actionQueue struct {
	pending map[string][]Action
	total   int
}

func newActionQueue() *actionQueue {
	return &actionQueue{pending: make(map[string][]Action)}
}

func (q *actionQueue) push(peripheral string, a Action) {
	q.pending[peripheral] = append(q.pending[peripheral], a)
	q.total++
}

// drain removes and returns every action queued for peripheral.
// Returns nil when nothing is pending.
func (q *actionQueue) drain(peripheral string) []Action {
	actions := q.pending[peripheral]
	if len(actions) == 0 {
		return nil
	}
	delete(q.pending, peripheral)
	q.total -= len(actions)
	return actions
}

func (q *actionQueue) len(peripheral string) int {
	return len(q.pending[peripheral])
}

func (q *actionQueue) Len() int {
	return q.total
}
