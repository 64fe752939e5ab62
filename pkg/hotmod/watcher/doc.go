// Package watcher turns raw file system events into settled per-file
// change notifications suitable for driving module reloads.
package watcher
