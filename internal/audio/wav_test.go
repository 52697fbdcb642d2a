package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeWAVPCM16LE(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav, err := EncodeWAVPCM16LE(pcm, 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}

	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Fatalf("missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		t.Fatalf("missing WAVE marker")
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(pcm)) {
		t.Fatalf("riff size = %d, want %d", got, 36+len(pcm))
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Fatalf("sample rate = %d, want 16000", got)
	}
	if !bytes.HasSuffix(wav, pcm) {
		t.Fatalf("payload not at end of container")
	}
}

func TestSilencePCM16(t *testing.T) {
	out := SilencePCM16(16000, 200)
	if len(out) != 6400 {
		t.Fatalf("silence length = %d, want 6400 bytes", len(out))
	}
	for _, b := range out {
		if b != 0 {
			t.Fatalf("silence contains nonzero byte")
		}
	}
}
