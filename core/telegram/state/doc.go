// Package state keeps per-user conversation state for Telegram bots in
// memory. It knows nothing about the conversations themselves; callers define
// their own State values next to StateIdle.
package state
