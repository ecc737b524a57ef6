//go:build unitypack_debug

package unitypack

// Freeing a string or object array with the wrong provenance panics in
// debug builds.
var debugChecks = true
