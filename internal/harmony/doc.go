// Package harmony incrementally parses the channelled "harmony" response
// format into structured messages.
//
// A Parser consumes one token (or decoded chunk) at a time. Boundary tokens
// such as <|start|> and <|message|> move it between header and content
// states; every content token yields a Delta so callers can render text as it
// arrives without rescanning what was already seen.
package harmony
