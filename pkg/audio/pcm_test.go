package audio_test

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/docassist/docassist/pkg/audio"
)

func constPCM(samples int, v int16) []byte {
	b := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

func TestRMS(t *testing.T) {
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v", got)
	}
	if got := audio.RMS(constPCM(100, 1000)); math.Abs(got-1000) > 1e-9 {
		t.Errorf("RMS(const 1000) = %v", got)
	}
	if got := audio.NormalizedRMS(constPCM(10, -16384)); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("NormalizedRMS(-16384) = %v", got)
	}
}

func TestDuration(t *testing.T) {
	// 16 kHz mono: 32 000 bytes per second.
	if got := audio.Duration(make([]byte, 3200), 16000, 1); got != 100*time.Millisecond {
		t.Errorf("Duration = %v", got)
	}
	if got := audio.Duration(make([]byte, 10), 0, 1); got != 0 {
		t.Errorf("Duration with zero rate = %v", got)
	}
}

func TestEncodeWAV(t *testing.T) {
	pcm := constPCM(4, 7)
	wav := audio.EncodeWAV(pcm, 16000, 1)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Error("bad header magic")
	}
	if sr := binary.LittleEndian.Uint32(wav[24:28]); sr != 16000 {
		t.Errorf("sample rate = %d", sr)
	}
	if ds := binary.LittleEndian.Uint32(wav[40:44]); ds != uint32(len(pcm)) {
		t.Errorf("data size = %d", ds)
	}
}

func TestResampleMono16(t *testing.T) {
	in := constPCM(480, 1200)
	out := audio.ResampleMono16(in, 48000, 16000)
	if len(out) != 160*2 {
		t.Fatalf("len = %d, want %d", len(out), 320)
	}
	if v := int16(binary.LittleEndian.Uint16(out[10:])); v != 1200 {
		t.Errorf("sample = %d", v)
	}
	if got := audio.ResampleMono16(in, 16000, 16000); len(got) != len(in) {
		t.Error("same rate should return input")
	}
	if got := audio.ResampleMono16(in, 0, 16000); len(got) != len(in) {
		t.Error("zero rate should return input")
	}
}

func TestSilenceDetector(t *testing.T) {
	// 100 ms frames at 16 kHz mono.
	quiet := constPCM(1600, 10)
	loud := constPCM(1600, 8000)

	d := audio.NewSilenceDetector(16000, 1, 0, 0)
	for i := range 19 {
		if d.Feed(quiet) {
			t.Fatalf("triggered after %d quiet frames", i+1)
		}
	}
	if d.Feed(loud) {
		t.Fatal("loud frame triggered")
	}
	for i := range 19 {
		if d.Feed(quiet) {
			t.Fatalf("triggered after reset at frame %d", i+1)
		}
	}
	if !d.Feed(quiet) {
		t.Error("expected trigger after 2s of quiet")
	}

	d.Reset()
	if d.Feed(quiet) {
		t.Error("Reset did not clear run")
	}
}
