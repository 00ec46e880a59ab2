// Package transport defines the point-to-point message primitive used by
// the balancer, job tree, and clause exchange (spec §6 "Transport"). The
// MPI transport itself is an out-of-scope external collaborator; this
// package only defines the Queue interface it must satisfy plus an
// in-process implementation used by tests and single-process runs.
package transport

// Tag identifies a message kind, mirroring spec §6's MSG_* constants.
type Tag int

const (
	MsgReduceData Tag = iota
	MsgBroadcastData
	MsgNotifyJobReady
	MsgQBFNotificationUpwards
	MsgQBFCancelChildren
	MsgRequestCubes
	MsgSendCubes
	MsgReturnFailedCubes
	MsgReceivedFailedCubes
	MsgDoExit
)

func (t Tag) String() string {
	names := [...]string{
		"MSG_REDUCE_DATA", "MSG_BROADCAST_DATA", "MSG_NOTIFY_JOB_READY",
		"MSG_QBF_NOTIFICATION_UPWARDS", "MSG_QBF_CANCEL_CHILDREN",
		"MSG_REQUEST_CUBES", "MSG_SEND_CUBES", "MSG_RETURN_FAILED_CUBES",
		"MSG_RECEIVED_FAILED_CUBES", "MSG_DO_EXIT",
	}
	if int(t) < 0 || int(t) >= len(names) {
		return "MSG_UNKNOWN"
	}
	return names[t]
}

// Message is a length-prefixed (by construction of Payload) envelope sent
// between ranks (spec §6: "Messages are length-prefixed byte arrays").
type Message struct {
	Source  int
	Tag     Tag
	Payload []byte
}
