package mux

import "strings"

const classPrefix = "Microsoft::Basix::Dct::Channel::Class::"

// Channel classes announced by Create messages.
const (
	ClassAudio         = classPrefix + "Audio"
	ClassVideo         = classPrefix + "Video"
	ClassInput         = classPrefix + "Input"
	ClassInputV2       = classPrefix + "InputV2"
	ClassInputFeedback = classPrefix + "Input Feedback"
	ClassChatAudio     = classPrefix + "ChatAudio"
	ClassControl       = classPrefix + "Control"
	ClassMessaging     = classPrefix + "Messaging"
	ClassQoS           = classPrefix + "QoS"
)

var knownClasses = map[string]bool{
	ClassAudio:         true,
	ClassVideo:         true,
	ClassInput:         true,
	ClassInputV2:       true,
	ClassInputFeedback: true,
	ClassChatAudio:     true,
	ClassControl:       true,
	ClassMessaging:     true,
	ClassQoS:           true,
}

// IsKnownClass reports whether name is one of the channel classes above.
func IsKnownClass(name string) bool { return knownClasses[name] }

// ShortClass strips the common namespace from a class name.
func ShortClass(name string) string { return strings.TrimPrefix(name, classPrefix) }

var (
	mediaPacketTypes = []string{"ServerHandshake", "ClientHandshake", "Control", "Data"}
	qosPacketTypes   = []string{"ServerHandshake", "ClientHandshake", "Control", "Data", "ServerPolicy", "ClientPolicy"}
	inputPacketTypes = []string{
		"ServerHandshakeV3", "ClientHandshakeV3", "FrameAck", "FrameV3",
		"ServerHandshakeV4", "ClientHandshakeV4", "FrameV4",
	}
	messagingPacketTypes = []string{"Handshake", "Data", "CancelRequest"}
)

// packetTypes lists the packet type names per class, numbered from 1.
var packetTypes = map[string][]string{
	ClassAudio:     mediaPacketTypes,
	ClassChatAudio: mediaPacketTypes,
	ClassVideo:     mediaPacketTypes,
	ClassQoS:       qosPacketTypes,
	ClassInput:     inputPacketTypes,
	ClassInputV2:   inputPacketTypes,
	ClassMessaging: messagingPacketTypes,
}

// PacketTypeName names the channel-specific packet type t of class.
func PacketTypeName(class string, t uint32) (string, bool) {
	names := packetTypes[class]
	if t == 0 || int(t) > len(names) {
		return "", false
	}
	return names[t-1], true
}
