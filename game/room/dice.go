package room

import "math/rand/v2"

// RollerFunc adapts a function to the Roller interface.
type RollerFunc func() int

func (f RollerFunc) Roll() int { return f() }

// DefaultRoller draws uniformly from 1..6 using the unseeded global source.
var DefaultRoller Roller = RollerFunc(func() int {
	return rand.IntN(DiceFaces) + 1
})
