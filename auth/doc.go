// Package auth is where player identities come from.
//
// Players register with a username and password (bcrypt hashed) and log in
// for an HS256 JWT. Requests present the token either in the access_token
// cookie set at login or as an Authorization: Bearer header; Identify turns
// either into the username used as the room identity.
package auth
