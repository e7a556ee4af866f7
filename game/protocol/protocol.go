package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wricardo/dicerace/game/room"
)

// Inbound tokens
const (
	TokenReady = "READY_TOGGLE"
	TokenRoll  = "ROLL_DICE"
)

// MaxChatLength is the longest chat text relayed, in bytes. Longer messages
// are cut at a rune boundary.
const MaxChatLength = 500

// Outbound tags
const (
	TagPlayerList  = "PLAYERLIST"
	TagReadyStatus = "READY_STATUS"
	TagPositions   = "PLAYER_POSITIONS"
	TagGameStart   = "GAME_START"
	TagTurnChange  = "TURN_CHANGE"
	TagDiceRoll    = "DICE_ROLL"
	TagWin         = "WIN"
)

// CommandKind classifies an inbound frame.
type CommandKind int

const (
	Chat CommandKind = iota
	Ready
	Roll
)

// Command is a decoded inbound frame.
type Command struct {
	Kind CommandKind
	Text string
}

// Parse decodes an inbound frame. Anything that is not a bare token is chat
// and keeps its text verbatim up to MaxChatLength.
func Parse(text string) Command {
	switch strings.TrimSpace(text) {
	case TokenReady:
		return Command{Kind: Ready}
	case TokenRoll:
		return Command{Kind: Roll}
	default:
		return Command{Kind: Chat, Text: truncate(text, MaxChatLength)}
	}
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// PlayerList encodes the ordered member list.
func PlayerList(names []string) string {
	return TagPlayerList + ":" + strings.Join(names, ",")
}

// ReadyStatus encodes every member's readiness.
func ReadyStatus(players []room.PlayerState) string {
	parts := make([]string, len(players))
	for i, p := range players {
		status := "not_ready"
		if p.Ready {
			status = "ready"
		}
		parts[i] = p.Name + ":" + status
	}
	return TagReadyStatus + ":" + strings.Join(parts, ",")
}

// Positions encodes every member's track position.
func Positions(players []room.PlayerState) string {
	parts := make([]string, len(players))
	for i, p := range players {
		parts[i] = p.Name + ":" + strconv.Itoa(p.Position)
	}
	return TagPositions + ":" + strings.Join(parts, ",")
}

// GameStart announces the starting player.
func GameStart(name string) string { return TagGameStart + ":" + name }

// TurnChange announces the next player to act.
func TurnChange(name string) string { return TagTurnChange + ":" + name }

// DiceRoll announces a roll and its value.
func DiceRoll(name string, value int) string {
	return fmt.Sprintf("%s:%s:%d", TagDiceRoll, name, value)
}

// Win announces the winner.
func Win(name string) string { return TagWin + ":" + name }

// ChatLine relays a chat message from name.
func ChatLine(name, text string) string { return " " + name + ": " + text }

// Joined is the free-text join notice.
func Joined(name string) string { return " " + name + " joined the room" }

// Left is the free-text leave notice.
func Left(name string) string { return " " + name + " left the room" }

// Abandoned is the notice sent when a match ends without a winner.
func Abandoned() string { return " match abandoned" }

// Frames maps one room event to its outbound frames, in send order.
func Frames(ev room.Event) []string {
	snap := ev.Snapshot
	switch ev.Kind {
	case room.Joined:
		return []string{Joined(ev.Identity)}
	case room.Left:
		frames := []string{Left(ev.Identity)}
		frames = append(frames, state(snap)...)
		if ev.TurnMoved {
			frames = append(frames, TurnChange(snap.Turn))
		}
		return frames
	case room.Synced:
		frames := state(snap)
		if snap.Phase == room.InProgress && snap.Turn != "" {
			frames = append(frames, TurnChange(snap.Turn))
		}
		return frames
	case room.ReadinessChanged:
		return []string{ReadyStatus(snap.Players)}
	case room.GameStarted:
		return []string{GameStart(ev.Identity), Positions(snap.Players)}
	case room.DiceRolled:
		return []string{DiceRoll(ev.Identity, ev.Value)}
	case room.PositionsChanged:
		return []string{Positions(snap.Players)}
	case room.TurnChanged:
		return []string{TurnChange(ev.Identity)}
	case room.Won:
		return []string{Win(ev.Identity)}
	case room.Abandoned:
		return []string{Abandoned()}
	case room.Chatted:
		return []string{ChatLine(ev.Identity, ev.Text)}
	default:
		return nil
	}
}

// state is the full snapshot triple sent to keep every UI consistent.
func state(snap room.Snapshot) []string {
	return []string{
		PlayerList(snap.Names()),
		ReadyStatus(snap.Players),
		Positions(snap.Players),
	}
}
