// Package config decodes data configurations and resolves them into one stream.
//
// A configuration is a tree. Leaves name data sources; groups combine their members
// with relative weights. Weights apply per level, so nested groups multiply:
//
//	input_config:
//	  - name: asr
//	    type: group
//	    weight: 0.7
//	    tags: {task: asr}
//	    components:
//	      - type: manifest_tarred
//	        manifest_filepath: /data/asr1/manifest__OP_0..511_CL_.json
//	        tarred_audio_filepaths: /data/asr1/audio__OP_0..511_CL_.tar
//	        weight: 0.6
//	      - type: manifest_tarred
//	        manifest_filepath: /data/asr2/manifest__OP_0..511_CL_.json
//	        tarred_audio_filepaths: /data/asr2/audio__OP_0..511_CL_.tar
//	        weight: 0.4
//	  - name: ast
//	    type: group
//	    weight: 0.3
//	    components: [...]
//
// The attributes shuffle, shard_seed, text_field, lang_field, missing_sampling_rate_ok
// and max_open_streams propagate downward; a value set on a node applies to that node
// and its descendants only.
//
// Documents may be YAML or TOML and are checked against an embedded JSON schema before
// decoding. Every shape problem is a *ConfigError, matched by errors.Is(err, ErrConfig),
// and is reported before any data file is opened. Build with Build(ctx, cfg, opts);
// leaf types map to sources through a Registry (DefaultRegistry reads the formats in
// package source).
package config
