package app

import "fmt"

// Rejection reasons are specific, stable strings so clients can decide
// whether to refetch state and retry or abandon the action.

func errBadTxValue(typ string) error {
	return fmt.Errorf("bad %s value", typ)
}

func errRoomNotFound(id uint64) error {
	return fmt.Errorf("room %d not found", id)
}

func errWrongPhase(have, want string) error {
	return fmt.Errorf("wrong phase: room is in %s, need %s", have, want)
}

func errNotYourTurn(addr string) error {
	return fmt.Errorf("not your turn: %s is not the current shuffler", addr)
}

func errNotParticipant(addr string) error {
	return fmt.Errorf("not a participant: %s", addr)
}

func errNotAlive(addr string) error {
	return fmt.Errorf("player %s is not alive", addr)
}

func errDeadlinePassed() error {
	return fmt.Errorf("phase deadline passed; only force-timeout is accepted")
}

func errDeadlineNotReached() error {
	return fmt.Errorf("phase deadline not reached")
}
