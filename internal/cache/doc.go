// Package cache keeps synthesized utterances so repeated messages are
// spoken without another round trip to the speech service. A small LRU in
// memory sits in front of a zstd-compressed directory on disk.
package cache
