//go:build !unitypack_debug

package unitypack

var debugChecks = false
