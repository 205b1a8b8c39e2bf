// Package deltastream decodes incrementally generated model text out of a raw
// Bedrock converse-stream HTTP response body.
//
// The upstream body interleaves binary event-stream framing with textual JSON.
// The decoder does not interpret the binary framing. It treats the body as
// newline-delimited frames, strips everything that is not printable text,
// locates each embedded envelope by a fixed sentinel literal, and parses the
// brace-balanced JSON object that follows it:
//
//	┌─────────────────────┐
//	│ io.ReadCloser (body)│
//	└─────────────────────┘
//	          │ raw chunks
//	          ▼
//	┌─────────────────────┐
//	│ line buffer         │  unterminated tail carried to the next chunk
//	└─────────────────────┘
//	          │ frames
//	          ▼
//	┌─────────────────────┐
//	│ sanitize + sentinel │  zero, one or many envelopes per frame
//	│ + brace scan        │
//	└─────────────────────┘
//	          │ JSON payloads
//	          ▼
//	┌─────────────────────┐
//	│ Decoder.Next()      │  delta.text values in arrival order
//	└─────────────────────┘
//
// Exception events such as throttlingException are ignored unless the decoder
// is created WithExceptions, in which case the first one ends the stream with
// a *StreamException.
//
// A Decoder is single-use and owned by one consumer. It performs no work except
// when the consumer pulls, and it closes the underlying body when the stream
// ends, fails, or the consumer calls Close.
package deltastream
