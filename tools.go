//go:build tools

// Package tools tracks tool dependencies invoked via go generate.
package relaychat

import (
	_ "go.uber.org/mock/mockgen"
)
