package fsync

// ============================================================================
// Frame Markers
// ============================================================================

var (
	// StartMarker opens every request and response frame.
	StartMarker = []byte("\r\nFSYNC\r\n")

	// EndMarker closes every request and response frame. For PUT requests it
	// also terminates the raw payload.
	EndMarker = []byte("\r\nDONE\r\n")
)

// The markers are read line by line. Each marker is a blank CRLF line
// followed by a tag line.
var (
	lineCRLF  = []byte("\r\n")
	lineStart = []byte("FSYNC\r\n")
	lineDone  = []byte("DONE\r\n")
)

const (
	// DefaultBufferSize is the default size of the per-connection read and
	// write buffers. It also bounds the length of a single request line.
	DefaultBufferSize = 64 * 1024

	// MinBufferSize is the smallest buffer size accepted by the codec.
	MinBufferSize = 256

	// MaxArgumentLines caps the argument lines read before the end marker.
	// No command takes more than one argument; the cap keeps a client that
	// never sends an end marker from growing the argument list forever.
	MaxArgumentLines = 4
)

// ============================================================================
// Response Status
// ============================================================================

// Status is the first line of a response frame.
type Status string

const (
	// StatusOK reports success. The body holds optional result lines.
	StatusOK Status = "OK"

	// StatusOut precedes streamed file content (GET).
	StatusOut Status = "OUT"

	// StatusAck acknowledges an upload (PUT). The end marker is written once
	// the payload has been stored.
	StatusAck Status = "ACK"

	// StatusError reports a failure. The body is a human readable message.
	StatusError Status = "ERROR"
)

// MsgInvalidRequest is the error body sent for unparseable requests.
const MsgInvalidRequest = "Invalid request"
