// Package recorder writes transcripts of proxied traffic.
//
// Each session gets one JSON Lines file; every line is an Entry holding the time,
// the session id, the direction and the raw message. When a transcript is closed
// it can be handed to an Uploader such as S3Uploader.
package recorder
