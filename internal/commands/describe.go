package commands

import (
	"fmt"

	"github.com/qvcloud/xmlbroker"
)

// Describe turns an operation error into the message shown to the user.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var msg string
	switch xmlbroker.KindOf(err) {
	case xmlbroker.KindConfiguration:
		msg = "Invalid broker settings (supported schemes: " + schemes() + ")"
	case xmlbroker.KindAuthentication:
		msg = "Broker rejected the user name or password"
	case xmlbroker.KindConnectivity:
		msg = "Failed to connect to broker"
	case xmlbroker.KindMalformedDocument:
		msg = "File is not a well-formed XML document"
	case xmlbroker.KindIO:
		msg = "Failed to read file"
	case xmlbroker.KindSend:
		msg = "Failed to upload file"
	case xmlbroker.KindReceive:
		msg = "Failed to receive file"
	case xmlbroker.KindCanceled:
		msg = "Gave up waiting for the broker"
	default:
		return err.Error()
	}
	return fmt.Sprintf("%s: %v", msg, err)
}
