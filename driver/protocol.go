package driver

import "encoding/base64"

// ProtocolVersion is the protocol version this runtime implements (§6).
// An inbound getProperties naming a newer version is a fatal
// incompatibility (§4.F classification 1, §8 scenario 1).
const ProtocolVersion = 1.7

const protocolVersionString = "1.7"

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// decodeBase64 decodes a oneBLOB body. When the element carries enclen
// (the exact encoded byte count), the dispatcher passes only the first
// enclen bytes of the body. The source sizes its decode buffer
// ⌈3·enclen/4⌉; Go's base64 decoder allocates its own output buffer, so
// no capacity is computed here.
func decodeBase64(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}
