package rtp

// Payload types used by the streaming session.
const (
	PayloadTypeBaseLinkControl      uint8 = 0x60
	PayloadTypeMuxDCTControl        uint8 = 0x61
	PayloadTypeFECControl           uint8 = 0x62
	PayloadTypeSecurityLayerCtrl    uint8 = 0x63
	PayloadTypeURCPControl          uint8 = 0x64
	PayloadTypeUDPKeepAlive         uint8 = 0x65
	PayloadTypeUDPConnectionProbing uint8 = 0x66
	PayloadTypeURCPDummyPacket      uint8 = 0x68
	PayloadTypeMockUDPDctCtrl       uint8 = 0x7f

	// Data channels use one payload type each.
	PayloadTypeMuxChannelMin uint8 = 0x23
	PayloadTypeMuxChannelMax uint8 = 0x3f
)

var payloadTypeNames = map[uint8]string{
	PayloadTypeBaseLinkControl:      "BaseLinkControl",
	PayloadTypeMuxDCTControl:        "MuxDCTControl",
	PayloadTypeFECControl:           "FECControl",
	PayloadTypeSecurityLayerCtrl:    "SecurityLayerCtrl",
	PayloadTypeURCPControl:          "URCPControl",
	PayloadTypeUDPKeepAlive:         "UDPKeepAlive",
	PayloadTypeUDPConnectionProbing: "UDPConnectionProbing",
	PayloadTypeURCPDummyPacket:      "URCPDummyPacket",
	PayloadTypeMockUDPDctCtrl:       "MockUDPDctCtrl",
}

// PayloadTypeName returns the display name of pt.
func PayloadTypeName(pt uint8) string {
	if name, ok := payloadTypeNames[pt]; ok {
		return name
	}
	if pt >= PayloadTypeMuxChannelMin && pt <= PayloadTypeMuxChannelMax {
		return "MuxDCTChannel"
	}
	return "Dynamic"
}
