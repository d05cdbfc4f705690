package wire

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	data := []byte("data")
	header := makeHeader(data)
	if got := parseHeader(header); got != uint32(len(data)) {
		t.Fatalf("header: expect %d, got %d", len(data), got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := &JobRequestMessage{NumJobs: 4}
	payload, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := decoded.(*JobRequestMessage)
	if !ok {
		t.Fatalf("expected *JobRequestMessage, got %T", decoded)
	}
	if got.NumJobs != want.NumJobs {
		t.Fatalf("NumJobs: expect %d, got %d", want.NumJobs, got.NumJobs)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	if _, err := Decode([]byte{0xff}); err == nil {
		t.Fatalf("expected an error for an unknown message kind")
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatalf("expected an error for an empty payload")
	}
}
