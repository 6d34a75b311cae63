package utils

import (
	passwordvalidator "github.com/wagslane/go-password-validator"
)

// fullStrengthBits is the entropy that rates 100.
const fullStrengthBits = 80.0

// Score rates a password from 0 to 100 from its estimated entropy. The
// estimate accounts for the character pools in use and discounts
// repeated characters and keyboard or alphabet runs.
func Score(password string) int {
	if password == "" {
		return 0
	}
	bits := passwordvalidator.GetEntropy(password)
	score := int(bits * 100 / fullStrengthBits)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
