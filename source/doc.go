// Package source provides the on-disk collaborators behind stream.Source: JSONL
// utterance manifests, manifests paired with tar shards, packaged cut manifests and
// packaged-sharded directories.
//
// Sources only read records and archive members. Audio bytes are carried in
// Entry.Audio untouched. Every source that spans several files implements
// stream.Sharder, returning one source per shard so a bounded multiplexer can
// interleave shards instead of whole datasets.
//
// Shard paths may use brace ranges, either "{0..3}" or the shell-safe "_OP_0..3_CL_":
//
//	m, err := source.NewManifest("data/manifest__OP_0..3_CL_.json", source.ManifestOptions{})
package source
