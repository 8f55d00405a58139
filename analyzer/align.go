package analyzer

import (
	"fmt"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/trace"
)

// Timeline is the aligned view of one unit type across the locations of a device.
type Timeline struct {
	Unit      string                  `json:"unit"`
	Locations []trace.Location        `json:"locations"`
	Columns   []trace.AlignmentColumn `json:"columns"`
}

type alignCursor struct {
	seq     Sequence
	entries []trace.OrderEntry
	pos     int
}

func (c *alignCursor) live() bool { return c.pos < len(c.entries) }

func (c *alignCursor) head() trace.DurationType { return c.entries[c.pos].Type }

// later reports whether label shows up after the head.
func (c *alignCursor) later(label trace.DurationType) bool {
	for _, e := range c.entries[c.pos+1:] {
		if e.Type == label {
			return true
		}
	}
	return false
}

// Align merges the sequences of several locations into one list of columns.
//
// Every round picks the head of the first location that still has entries as
// candidate and gathers every other location whose head has the same label.
// A location whose head differs but which holds the candidate further ahead
// would be skipped past it, so the candidate is discarded for the round and
// that location's head becomes the candidate instead. Once no swap happens the
// column is emitted and every participant advances by one.
//
// Each swap discards a label not discarded before in that round, so a round
// swaps at most once per distinct label. Each round advances at least the
// candidate's own location, so the number of rounds is bounded by the total
// number of entries. Exceeding either bound means the input changed under us
// and ErrAlignmentStall is returned.
func Align(locations []trace.Location, seqs map[trace.Location]Sequence) ([]trace.AlignmentColumn, error) {
	cursors := make([]*alignCursor, len(locations))
	total := 0
	distinct := map[trace.DurationType]struct{}{}
	for i, loc := range locations {
		c := &alignCursor{}
		if s, ok := seqs[loc]; ok && s != nil {
			c.seq = s
			c.entries = s.Entries()
		}
		for _, e := range c.entries {
			distinct[e.Type] = struct{}{}
		}
		total += len(c.entries)
		cursors[i] = c
	}

	var columns []trace.AlignmentColumn
	maxRounds := total + len(distinct)
	for round := 0; ; round++ {
		first := -1
		for i, c := range cursors {
			if c.live() {
				first = i
				break
			}
		}
		if first < 0 {
			return columns, nil
		}
		if round >= maxRounds {
			return nil, fmt.Errorf("%w: no progress after %d rounds", trace.ErrAlignmentStall, round)
		}

		candidate := cursors[first].head()
		members := make([]bool, len(cursors))
		members[first] = true
		discarded := map[trace.DurationType]bool{}
		for swapped := true; swapped; {
			swapped = false
			for i, c := range cursors {
				if !c.live() || members[i] {
					continue
				}
				h := c.head()
				if h == candidate {
					members[i] = true
					continue
				}
				if discarded[candidate] || !c.later(candidate) {
					continue
				}
				discarded[candidate] = true
				if len(discarded) > len(distinct) {
					return nil, fmt.Errorf("%w: candidate %s keeps being displaced", trace.ErrAlignmentStall, candidate)
				}
				candidate = h
				members = make([]bool, len(cursors))
				members[i] = true
				swapped = true
				break
			}
		}

		col := trace.AlignmentColumn{Type: candidate, Values: make([]uint64, len(locations))}
		for i, c := range cursors {
			if !members[i] {
				continue
			}
			col.Participants = append(col.Participants, locations[i])
			col.Values[i] = c.seq.Value(c.pos)
			c.pos++
		}
		if len(col.Participants) == 0 {
			return nil, fmt.Errorf("%w: empty column for %s", trace.ErrAlignmentStall, candidate)
		}
		columns = append(columns, col)
	}
}
