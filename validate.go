package main

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/wricardo/dicerace/game/config"
	"github.com/wricardo/dicerace/game/room"
)

// ValidationResult captures the outcome of validating a single preset file.
// If Valid is true, Notes holds informational lines; otherwise it holds the
// errors that were found.
type ValidationResult struct {
	File  string
	Valid bool
	Notes []string
}

// expectedRolls is the mean number of rolls one player needs to cover the
// track, ignoring the clamp at the finish.
func expectedRolls(trackLength int) int {
	mean := float64(room.DiceFaces+1) / 2
	return int(math.Ceil(float64(trackLength-1) / mean))
}

// validatePreset loads one preset and describes the race it produces.
func validatePreset(path string) ValidationResult {
	result := ValidationResult{File: filepath.Base(path), Valid: true}

	p, err := config.Validate(path)
	if err != nil {
		result.Valid = false
		result.Notes = append(result.Notes, err.Error())
		return result
	}

	result.Notes = append(result.Notes,
		fmt.Sprintf("✓ %s: up to %d players, %d cells", p.Name, p.MaxPlayers, p.TrackLength),
		fmt.Sprintf("✓ about %d rolls per player to finish", expectedRolls(p.TrackLength)),
	)
	if p.TrackLength-1 <= room.DiceFaces {
		result.Notes = append(result.Notes, "⚠️  the first roll can win the race")
	}
	return result
}

// validatePresets prints a report for every *.json file in dir and reports
// whether all of them are valid.
func validatePresets(w io.Writer, dir string) (bool, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return false, fmt.Errorf("error finding preset files: %w", err)
	}
	if len(files) == 0 {
		return false, fmt.Errorf("no preset files in %s", dir)
	}

	allValid := true
	for _, file := range files {
		result := validatePreset(file)

		fmt.Fprintf(w, "\n%s %s\n", strings.Repeat("=", 20), result.File)
		if result.Valid {
			fmt.Fprintln(w, "✅ VALID")
			for _, note := range result.Notes {
				fmt.Fprintln(w, "  "+note)
			}
		} else {
			fmt.Fprintln(w, "❌ INVALID")
			allValid = false
			for _, note := range result.Notes {
				fmt.Fprintln(w, "  ❌ "+note)
			}
		}
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Fprintln(w, "✅ All presets are valid!")
	} else {
		fmt.Fprintln(w, "❌ Some presets have errors")
	}
	return allValid, nil
}
