// Package fsync implements the wire format of the fsync remote filesystem
// protocol.
//
// Every request and response is a frame delimited by two literal markers:
//
//	\r\nFSYNC\r\n   start marker
//	\r\nDONE\r\n    end marker
//
// A request carries one command line, zero or more argument lines and, for
// PUT only, a raw payload that runs until the end marker:
//
//	\r\nFSYNC\r\n
//	PUT\n
//	/docs/readme.txt\n
//	<payload bytes>
//	\r\nDONE\r\n
//
// A response carries one status line (OK, OUT, ACK or ERROR) followed by an
// optional body:
//
//	\r\nFSYNC\r\nOK\r\nkind=file size=12 modified=2026-01-02T15:04:05Z\r\nDONE\r\n
//	\r\nFSYNC\r\nERROR\r\nInvalid request\r\nDONE\r\n
//
// Payloads are scanned for the end marker with a bounded carry-over window
// (see PayloadReader), so a marker split across two network reads is still
// recognised and memory stays constant for arbitrarily large uploads.
//
// The package only deals with bytes. Path resolution, filesystem effects and
// change notification live in the handlers subpackage and its collaborators.
package fsync
