package model

// EffectKind distinguishes forward shortcuts from setbacks
type EffectKind string

const (
	EffectSnake  EffectKind = "snake"
	EffectLadder EffectKind = "ladder"
)

// BoardEntry is a directed jump from Start to End
type BoardEntry struct {
	Start int
	End   int
	Kind  EffectKind
}

// Board is a linear track of Size cells plus its snakes and ladders
type Board struct {
	Size    int
	Entries []BoardEntry
}

// EntryAt returns the snake or ladder starting at cell, if any
func (b Board) EntryAt(cell int) (BoardEntry, bool) {
	for _, e := range b.Entries {
		if e.Start == cell {
			return e, true
		}
	}
	return BoardEntry{}, false
}

// Effect records a snake or ladder that was taken during a move
type Effect struct {
	Kind EffectKind
	From int
	To   int
}
