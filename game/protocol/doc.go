// Package protocol encodes and decodes the text frames exchanged with game clients.
//
// Inbound frames are bare tokens:
//
//	READY_TOGGLE   toggle readiness in the lobby
//	ROLL_DICE      roll on your turn
//
// Any other text is chat and is rebroadcast verbatim prefixed with the sender.
//
// Outbound frames are a tag, a colon and a payload:
//
//	PLAYERLIST:alice,bob
//	READY_STATUS:alice:ready,bob:not_ready
//	PLAYER_POSITIONS:alice:3,bob:0
//	GAME_START:alice
//	DICE_ROLL:alice:3
//	TURN_CHANGE:bob
//	WIN:alice
//
// Notices and chat are free text starting with a space, e.g. " alice joined the room".
//
// Everything here is a pure function; Frames turns a room event into the frames
// every member of that room should receive.
package protocol
