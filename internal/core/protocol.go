package core

// Methods of the matching server.
const (
	MethodGetRtpCapabilities = "get-rtp-capabilities"
	MethodCreateTransport    = "create-transport"
	MethodConnectTransport   = "connect-transport"
	MethodProduce            = "produce"
	MethodFindMatch          = "find-match"
	MethodRequestConsume     = "request-consume"
	MethodLeaveRoom          = "leave-room"
)

// Server pushes.
const (
	EventMatchFound       = "match-found"
	EventPeerDisconnected = "peer-disconnected"
	EventNewConsumer      = "new-consumer"
)

type TransportType string

const (
	TransportProducer TransportType = "producer"
	TransportConsumer TransportType = "consumer"
)

type RtpCapabilitiesResponse struct {
	RtpCapabilities RtpCapabilities `json:"rtpCapabilities"`
}

type CreateTransportRequest struct {
	Type TransportType `json:"type"`
}

type ConnectTransportRequest struct {
	TransportID    string         `json:"transportId"`
	DtlsParameters DtlsParameters `json:"dtlsParameters"`
}

type ProduceRequest struct {
	TransportID   string        `json:"transportId"`
	Kind          MediaKind     `json:"kind"`
	RtpParameters RtpParameters `json:"rtpParameters"`
}

type ProduceResponse struct {
	ID string `json:"id"`
}

type FindMatchRequest struct {
	Role     string `json:"role"`
	Language string `json:"language"`
	UserID   string `json:"userId"`
}

type RequestConsumeRequest struct {
	RtpCapabilities RtpCapabilities `json:"rtpCapabilities"`
}

type MatchFound struct {
	PeerID string `json:"peerId"`
}

type NewConsumer struct {
	ID            string        `json:"id"`
	ProducerID    string        `json:"producerId"`
	Kind          MediaKind     `json:"kind"`
	RtpParameters RtpParameters `json:"rtpParameters"`
}

type ErrorPush struct {
	Message string `json:"message"`
}
