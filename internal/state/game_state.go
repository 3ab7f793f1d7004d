package state

import (
	"fmt"
	"strings"
)

// GameState is the lifecycle phase of the host application.
type GameState int

const (
	Unknown GameState = iota
	MainMenu
	Loading
	InWorld
	InWorldNoPlayer
)

var gameStateNames = [...]string{
	Unknown:         "Unknown",
	MainMenu:        "MainMenu",
	Loading:         "Loading",
	InWorld:         "InWorld",
	InWorldNoPlayer: "InWorldNoPlayer",
}

// AllStates lists every GameState in declaration order.
func AllStates() []GameState {
	return []GameState{Unknown, MainMenu, Loading, InWorld, InWorldNoPlayer}
}

// String returns the wire name of the state.
func (s GameState) String() string {
	if s < 0 || int(s) >= len(gameStateNames) {
		return gameStateNames[Unknown]
	}
	return gameStateNames[s]
}

// ParseGameState resolves a state name case-insensitively.
func ParseGameState(name string) (GameState, bool) {
	name = strings.TrimSpace(name)
	for i, n := range gameStateNames {
		if strings.EqualFold(n, name) {
			return GameState(i), true
		}
	}
	return Unknown, false
}

// MarshalText implements encoding.TextMarshaler.
func (s GameState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *GameState) UnmarshalText(text []byte) error {
	parsed, ok := ParseGameState(string(text))
	if !ok {
		return fmt.Errorf("unknown game state %q", string(text))
	}
	*s = parsed
	return nil
}
