package discovery

import "testing"

func TestHostPortRoundTrip(t *testing.T) {
	encoded := encodeHostPort("10.0.0.5", 7000)
	host, port, err := decodeHostPort(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if host != "10.0.0.5" || port != 7000 {
		t.Fatalf("got (%s, %d)", host, port)
	}
}

func TestEmptyHostSurvivesRoundTrip(t *testing.T) {
	// The job-server replies with an empty host; the asker is expected
	// to substitute the sender's observed IP.
	encoded := encodeHostPort("", 7000)
	host, port, err := decodeHostPort(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if host != "" || port != 7000 {
		t.Fatalf("got (%q, %d)", host, port)
	}
}

func TestDecodeTruncated(t *testing.T) {
	if _, _, err := decodeHostPort([]byte{0, 5}); err == nil {
		t.Fatalf("expected an error for a truncated packet")
	}
}
