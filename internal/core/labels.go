// Package core defines core types.
package core

// Labels represents key-value metadata attached by parsers.
type Labels map[string]string

// Label naming constants following {protocol}.{field} convention.
const (
	LabelTunnel       = "net.tunnel"
	LabelTeredoClient = "net.teredo_client" // Public endpoint embedded in the Teredo address

	// STUN
	LabelSTUNClass         = "stun.class"
	LabelSTUNMethod        = "stun.method"
	LabelSTUNTransactionID = "stun.transaction_id" // 24 hex digits
	LabelSTUNAttrCount     = "stun.attr_count"
	LabelSTUNMappedAddress = "stun.mapped_address" // XOR-MAPPED-ADDRESS or MAPPED-ADDRESS
	LabelSTUNUsername      = "stun.username"

	// Connection probing
	LabelProbeType         = "probe.type" // "syn" / "ack"
	LabelProbeDataLen      = "probe.data_len"
	LabelProbeAcceptedSize = "probe.accepted_size"
	LabelProbeAppendix     = "probe.appendix"
	LabelProbeRound        = "probe.round"
	LabelProbeMatch        = "probe.match"       // Record index of the correlated Syn
	LabelProbeMatchExact   = "probe.match_exact" // "true" when sizes are equal

	// RTP / RTCP
	LabelRTPVersion     = "rtp.version"
	LabelRTPPayloadType = "rtp.payload_type" // RTP payload type number (0-127)
	LabelRTPPayloadName = "rtp.payload_name" // e.g. "MuxDCTControl"
	LabelRTPSeq         = "rtp.seq"          // Sequence number (decimal)
	LabelRTPTimestamp   = "rtp.timestamp"    // RTP timestamp (decimal)
	LabelRTPSSRC        = "rtp.ssrc"         // Synchronization source (hex, 0xXXXXXXXX)
	LabelRTPMarker      = "rtp.marker"       // Marker bit ("true"/"false")
	LabelRTPExtension   = "rtp.has_ext"      // Header extension present ("true"/"false")
	LabelRTPCSRCCount   = "rtp.csrc_count"
	LabelRTPPayloadLen  = "rtp.payload_len"

	LabelRTCPPayloadType = "rtcp.payload_type" // RTCP packet type (200-209)
	LabelRTCPTypeName    = "rtcp.type_name"    // e.g. "SR", "RR"
	LabelRTCPSSRC        = "rtcp.ssrc"         // Sender/source SSRC (hex)

	// SRTP
	LabelSRTPIndex = "srtp.index" // 48-bit extended packet index
	LabelSRTPROC   = "srtp.roc"
	LabelSRTPAuth  = "srtp.auth" // "ok" / "failed"

	// Mux channel
	LabelMuxKind       = "mux.kind" // keepalive / control / data / opaque
	LabelMuxClassName  = "mux.class_name"
	LabelMuxClassKnown = "mux.class_known"
	LabelMuxOpcode     = "mux.opcode"
	LabelMuxSequence   = "mux.seq"
	LabelMuxChannelID  = "mux.channel_id"
	LabelMuxChannel    = "mux.channel"     // Class name resolved through the channel directory
	LabelMuxPacketType = "mux.packet_type" // Channel-specific packet type name
	LabelMuxKeepAlive  = "mux.keepalive"   // "seq/timestamp/ssrc"
)
