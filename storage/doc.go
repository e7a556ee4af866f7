// Package storage persists accounts and finished races.
//
// Two backends implement Store: SQLiteStore for single-node deployments and
// PostgresStore for shared ones. Open picks one from the DSN. Schema changes
// live in migrations/<dialect> and are applied with goose when a store opens.
//
// Tables:
//
//	users         username, bcrypt hash, optional email
//	games         one row per finished race, game_time in whole seconds
//	game_players  who took part in each race and who won
package storage
