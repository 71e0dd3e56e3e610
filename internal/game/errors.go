package game

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrGameOver           = errors.New("game is over")
	ErrNotYourTurn        = errors.New("not the human's turn")
	ErrPromotionRequired  = errors.New("promotion piece required")
	ErrPromotionPending   = errors.New("a promotion choice is pending")
	ErrNoPendingPromotion = errors.New("no promotion pending")
	ErrInvalidPromotion   = errors.New("invalid promotion piece")
	ErrInvalidSquare      = errors.New("invalid square")
	ErrIllegalMove        = errors.New("illegal move")
	ErrClosed             = errors.New("game session closed")
)

// MoveRejectedError is returned for a human move the rules do not allow.
// Targets lists the legal destinations of From so the caller can re-offer
// them; it is empty when From holds no movable piece.
type MoveRejectedError struct {
	From    string
	To      string
	Reason  string
	Targets []string
}

func (e *MoveRejectedError) Error() string {
	msg := fmt.Sprintf("illegal move %s%s: %s", e.From, e.To, e.Reason)
	if len(e.Targets) > 0 {
		msg += " (legal: " + strings.Join(e.Targets, ",") + ")"
	}
	return msg
}

func (e *MoveRejectedError) Unwrap() error { return ErrIllegalMove }
