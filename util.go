package main

import "github.com/google/uuid"

// GenerateUUID returns a random v4 UUID string
func GenerateUUID() string {
	return uuid.NewString()
}

// ClampInt restricts v to [min, max]
func ClampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Manhattan returns the grid distance between two cells
func Manhattan(r1, c1, r2, c2 int) int {
	return absInt(r1-r2) + absInt(c1-c2)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
