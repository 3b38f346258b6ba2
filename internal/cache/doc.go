// Package cache implements the versioned response store. A Storage holds any
// number of NamedCaches laid out as StoragePath/<name>/<shard>/<digest>.entry;
// each entry file is a zstd-compressed record carrying the request key, the
// response and a digest of the body that is verified on every read.
//
// Writes go through a temp file + rename so a reader sees either the previous
// or the new entry, never a torn one. There is no per-key locking: concurrent
// writers to the same key race and the last rename wins. Whole caches are
// created atomically by Replace (staging dir + rename) and removed by Delete
// (rename to a trash dir, then RemoveAll), so a cache name either exists with
// its full contents or does not exist.
package cache
