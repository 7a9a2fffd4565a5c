package encoding

import (
	"bytes"
	"os"
	"testing"

	"google.golang.org/protobuf/types/known/timestamppb"
)

// TestProtocolBuffersCycle tests a Protocol Buffers marshal/save/load/unmarshal
// cycle.
func TestProtocolBuffersCycle(t *testing.T) {
	// Create an empty temporary file and defer its cleanup.
	file, err := os.CreateTemp("", "miner_encoding")
	if err != nil {
		t.Fatal("unable to create temporary file:", err)
	} else if err = file.Close(); err != nil {
		t.Fatal("unable to close temporary file:", err)
	}
	defer os.Remove(file.Name())

	// Create a Protocol Buffers message that we can test with.
	message := &timestamppb.Timestamp{
		Seconds: 1776,
		Nanos:   1812,
	}
	if err := MarshalAndSaveProtobuf(file.Name(), message); err != nil {
		t.Fatal("unable to marshal and save Protocol Buffers message:", err)
	}

	// Reload the message.
	decoded := &timestamppb.Timestamp{}
	if err := LoadAndUnmarshalProtobuf(file.Name(), decoded); err != nil {
		t.Fatal("unable to load and unmarshal Protocol Buffers message:", err)
	}

	// Verify that contents were preserved.
	if decoded.Seconds != message.Seconds || decoded.Nanos != message.Nanos {
		t.Error("decoded Protocol Buffers message did not match original:", decoded, "!=", message)
	}
}

const (
	// testProtobufEncodingNMessages is the number of messages to send/receive
	// in TestProtobufEncoding.
	testProtobufEncodingNMessages = 100
	// testProtobufSingleEncodingNMessage is the number of messages to
	// send/receive in TestProtobufSingleEncoding.
	testProtobufSingleEncodingNMessage = 10
)

func TestProtobufEncoding(t *testing.T) {
	// Create a buffer to use as our stream.
	stream := &bytes.Buffer{}

	// Create an encoder/decoder pair.
	encoder := NewProtobufEncoder(stream)
	decoder := NewProtobufDecoder(stream)

	// Write a sequence of timestamp messages with increasing second values.
	message := &timestamppb.Timestamp{Nanos: 1812}
	for i := 0; i < testProtobufEncodingNMessages; i++ {
		message.Seconds = int64(i)
		if err := encoder.Encode(message); err != nil {
			t.Fatal("unable to encode message:", err)
		}
	}

	// Read a sequence of timestamp messages and verify their second values.
	for i := 0; i < testProtobufEncodingNMessages; i++ {
		*message = timestamppb.Timestamp{}
		if err := decoder.Decode(message); err != nil {
			t.Fatal("unable to decode message:", err)
		} else if message.Seconds != int64(i) {
			t.Error("seconds mismatch in received message")
		} else if message.Nanos != 1812 {
			t.Error("nanos mismatch in received message")
		}
	}
}

func TestProtobufSingleEncoding(t *testing.T) {
	// Create a buffer to use as our stream.
	stream := &bytes.Buffer{}

	// Write a sequence of timestamp messages with increasing second values.
	message := &timestamppb.Timestamp{Nanos: 1812}
	for i := 0; i < testProtobufSingleEncodingNMessage; i++ {
		message.Seconds = int64(i)
		if err := EncodeProtobuf(stream, message); err != nil {
			t.Fatal("unable to encode message:", err)
		}
	}

	// Read a sequence of timestamp messages and verify their second values.
	for i := 0; i < testProtobufSingleEncodingNMessage; i++ {
		*message = timestamppb.Timestamp{}
		if err := DecodeProtobuf(stream, message); err != nil {
			t.Fatal("unable to decode message:", err)
		} else if message.Seconds != int64(i) {
			t.Error("seconds mismatch in received message")
		} else if message.Nanos != 1812 {
			t.Error("nanos mismatch in received message")
		}
	}
}
