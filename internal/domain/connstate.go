package domain

// ConnectionState status of the push channel.
type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "DISCONNECTED"
	ConnectionConnecting   ConnectionState = "CONNECTING"
	ConnectionConnected    ConnectionState = "CONNECTED"
	ConnectionError        ConnectionState = "ERROR"
)

// String returns the string representation.
func (s ConnectionState) String() string {
	return string(s)
}
