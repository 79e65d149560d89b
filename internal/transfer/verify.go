package transfer

import "github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"

// VerifyEcho compares the first n bytes of sent against the device reply,
// which carries a one byte header before the echoed packet.
func VerifyEcho(sent, echoed []byte, n int) error {
	for j := 0; j < n; j++ {
		if j >= len(sent) {
			break
		}
		if j+1 >= len(echoed) {
			return &audiomoth.PacketMismatchError{Index: j, Sent: sent[j], Truncated: true}
		}
		if sent[j] != echoed[j+1] {
			return &audiomoth.PacketMismatchError{Index: j, Sent: sent[j], Echoed: echoed[j+1]}
		}
	}
	return nil
}
