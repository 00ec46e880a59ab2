package qbf

import "testing"

func TestNotificationRoundTrip(t *testing.T) {
	n := Notification{RootJobID: 7, Depth: 2, ChildIdx: 1, ResultCode: 20}
	got, err := DeserializeNotification(n.Serialize())
	if err != nil {
		t.Fatalf("DeserializeNotification: %v", err)
	}
	if got != n {
		t.Fatalf("got %+v, want %+v", got, n)
	}
}

func TestDeserializeNotificationRejectsWrongSize(t *testing.T) {
	if _, err := DeserializeNotification([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for malformed notification")
	}
}
