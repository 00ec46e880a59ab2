// Package qbf implements the recursive quantifier-prefix splitting
// driver used to reduce a QBF instance to a tree of SAT/QBF sub-jobs
// (spec §8 scenario 6), plus the cube-and-conquer request/return
// protocol. Both are treated as thin drivers built on top of the job
// and subprocess-adapter abstractions rather than core subsystems in
// their own right.
//
// Grounded on original_source/src/app/qbf/execution/qbf_job.{hpp,cpp},
// qbf_notification.hpp, and original_source/src/app/sat/cube/*.
package qbf

import (
	"encoding/binary"

	"github.com/grailbio/base/errors"
)

// Notification is the upward/cancellation message exchanged between a
// QBF job node and its parent (MSG_QBF_NOTIFICATION_UPWARDS) or its
// children (MSG_QBF_CANCEL_CHILDREN), grounded on qbf_notification.hpp's
// QbfNotification (four packed ints: root job id, depth, child index,
// result code).
type Notification struct {
	RootJobID  int32
	Depth      int32
	ChildIdx   int32
	ResultCode int32
}

const notificationWireSize = 16

// Serialize packs the notification into its fixed 16-byte wire form.
func (n Notification) Serialize() []byte {
	buf := make([]byte, notificationWireSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(n.RootJobID))
	binary.LittleEndian.PutUint32(buf[4:], uint32(n.Depth))
	binary.LittleEndian.PutUint32(buf[8:], uint32(n.ChildIdx))
	binary.LittleEndian.PutUint32(buf[12:], uint32(n.ResultCode))
	return buf
}

// DeserializeNotification is the inverse of Serialize.
func DeserializeNotification(data []byte) (Notification, error) {
	if len(data) != notificationWireSize {
		return Notification{}, errors.E(errors.Invalid, "qbf: notification must be exactly 16 bytes, got", len(data))
	}
	return Notification{
		RootJobID:  int32(binary.LittleEndian.Uint32(data[0:])),
		Depth:      int32(binary.LittleEndian.Uint32(data[4:])),
		ChildIdx:   int32(binary.LittleEndian.Uint32(data[8:])),
		ResultCode: int32(binary.LittleEndian.Uint32(data[12:])),
	}, nil
}
