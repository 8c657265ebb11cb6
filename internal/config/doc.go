// Package config loads cdpproxy configuration.
//
// Configuration lives in cdpproxy.json or cdpproxy.toml; both carry the same sections:
//
//	[server]
//	host = "127.0.0.1"
//	port = 9223
//
//	[target]
//	url = "ws://127.0.0.1:9222/devtools/browser/<id>"
//	dialTimeout = "10s"
//	maxRetries = 3
//
//	[log]
//	level = "info"
//	format = "text"
//
//	[metrics]
//	enabled = true
//
//	[record]
//	enabled = true
//	dir = "transcripts"
//	s3Bucket = "my-bucket"
//
// Unset fields take the values from New. Validate reports problems as coded errors
// from internal/errors so the command can print them with a location and a hint.
package config
