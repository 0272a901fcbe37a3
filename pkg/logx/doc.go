// Package logx is statusrelay's structured logging on top of zerolog.
//
// Console lines are human readable with a short caller; the optional file
// sink writes one JSON object per line.
package logx
