//go:build tools
// +build tools

// Package gochat tracks tool dependencies invoked through go generate.
package gochat

import (
	_ "go.uber.org/mock/mockgen"
)
