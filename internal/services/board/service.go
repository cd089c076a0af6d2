package board

import (
	"errors"
	"fmt"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/dependencies/random"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/model"
)

// DieFaces is the number of faces on the die
const DieFaces = 6

// Resolution is the outcome of applying a roll to a position
type Resolution struct {
	NewPosition int
	Effect      *model.Effect // Nil when no snake or ladder was taken
	IsWinner    bool
}

// Resolve computes where a token at position ends up after rolling roll.
// Overshooting the last cell leaves the token where it is.
func Resolve(position, roll int, b model.Board) Resolution {
	target := position + roll

	if target > b.Size {
		return Resolution{NewPosition: position}
	}
	if target == b.Size {
		return Resolution{NewPosition: target, IsWinner: true}
	}

	if entry, ok := b.EntryAt(target); ok {
		return Resolution{
			NewPosition: entry.End,
			Effect: &model.Effect{
				Kind: entry.Kind,
				From: target,
				To:   entry.End,
			},
			IsWinner: entry.End == b.Size,
		}
	}

	return Resolution{NewPosition: target}
}

// RollDie draws a uniform value in 1..DieFaces
func RollDie(rnd random.Random) int {
	return rnd.Intn(DieFaces) + 1
}

// DefaultBoard returns the standard 100-cell board
func DefaultBoard() model.Board {
	ladder := func(start, end int) model.BoardEntry {
		return model.BoardEntry{Start: start, End: end, Kind: model.EffectLadder}
	}
	snake := func(start, end int) model.BoardEntry {
		return model.BoardEntry{Start: start, End: end, Kind: model.EffectSnake}
	}

	return model.Board{
		Size: 100,
		Entries: []model.BoardEntry{
			ladder(2, 38),
			ladder(7, 14),
			ladder(8, 31),
			ladder(15, 26),
			ladder(21, 42),
			ladder(28, 84),
			ladder(36, 44),
			ladder(51, 67),
			ladder(71, 91),
			ladder(78, 98),
			ladder(87, 94),
			snake(16, 6),
			snake(46, 25),
			snake(49, 11),
			snake(62, 19),
			snake(64, 60),
			snake(74, 53),
			snake(89, 68),
			snake(92, 88),
			snake(95, 75),
			snake(99, 80),
		},
	}
}

// ErrInvalidBoard is returned by Validate for malformed boards
var ErrInvalidBoard = errors.New("invalid board")

// Validate checks that a board is well formed
func Validate(b model.Board) error {
	if b.Size < 2 {
		return fmt.Errorf("%w: size %d is too small", ErrInvalidBoard, b.Size)
	}

	starts := make(map[int]bool, len(b.Entries))
	ends := make(map[int]bool, len(b.Entries))

	for _, e := range b.Entries {
		if e.Start < 2 || e.Start >= b.Size {
			return fmt.Errorf("%w: entry start %d out of range", ErrInvalidBoard, e.Start)
		}
		if e.End < 1 || e.End > b.Size {
			return fmt.Errorf("%w: entry end %d out of range", ErrInvalidBoard, e.End)
		}
		switch e.Kind {
		case model.EffectLadder:
			if e.End <= e.Start {
				return fmt.Errorf("%w: ladder %d->%d does not climb", ErrInvalidBoard, e.Start, e.End)
			}
		case model.EffectSnake:
			if e.End >= e.Start {
				return fmt.Errorf("%w: snake %d->%d does not descend", ErrInvalidBoard, e.Start, e.End)
			}
		default:
			return fmt.Errorf("%w: unknown kind %q", ErrInvalidBoard, e.Kind)
		}
		if starts[e.Start] {
			return fmt.Errorf("%w: two entries start at %d", ErrInvalidBoard, e.Start)
		}
		starts[e.Start] = true
		ends[e.End] = true
	}

	for start := range starts {
		if ends[start] {
			return fmt.Errorf("%w: cell %d is both a start and an end", ErrInvalidBoard, start)
		}
	}

	return nil
}
