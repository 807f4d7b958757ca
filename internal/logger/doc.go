// Package logger configures the global zerolog logger of the portal: console
// and rolling file output split by level, plus a prometheus counter of log
// statements per level.
package logger
