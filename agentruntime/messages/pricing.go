/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package messages

import "strings"

// price is USD per million tokens.
type price struct {
	input, output float64
}

// Matched by substring in order; first hit wins.
var prices = []struct {
	family string
	price  price
}{
	{"opus", price{input: 15, output: 75}},
	{"sonnet", price{input: 3, output: 15}},
	{"haiku", price{input: 1, output: 5}},
}

// estimateCost returns the list price of the tokens for model, or zero for
// an unknown model family.
func estimateCost(model string, inputTokens, outputTokens int64) float64 {
	model = strings.ToLower(model)
	for _, p := range prices {
		if strings.Contains(model, p.family) {
			return (float64(inputTokens)*p.price.input + float64(outputTokens)*p.price.output) / 1e6
		}
	}
	return 0
}
