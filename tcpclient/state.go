package tcpclient

// ConnectionState represents the current state of a Client.
type ConnectionState int32

const (
	Disconnected  ConnectionState = iota // Not connected; Connect may be called
	Connecting                           // Connection attempt in progress
	Connected                            // Socket established
	Disconnecting                        // Socket being closed
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}
