package ws

import "cultura-chupistica/internal/gateway"

// Outbound frames carry a discriminator so clients demux command replies
// from the broadcast stream on one socket.
const (
	FrameEvent    = "event"
	FrameResponse = "response"
	FrameGoodbye  = "goodbye"
)

type EventFrame struct {
	Frame string        `json:"frame"`
	Event gateway.Event `json:"event"`
}

type ResponseFrame struct {
	Frame    string           `json:"frame"`
	Response gateway.Response `json:"response"`
}

// GoodbyeFrame is the last frame before the server closes the socket.
// Reason "slow_consumer" tells the client to reconnect and resync from its
// last seen seq.
type GoodbyeFrame struct {
	Frame  string `json:"frame"`
	Reason string `json:"reason"`
}
