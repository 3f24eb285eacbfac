package compression

import (
	"bytes"
	"testing"
)

var benchPayload = bytes.Repeat([]byte(`{"conv_rate":0.52,"acc_rate":0.91,"avg_daily_trips":14}`), 32)

func BenchmarkZStdEncoder_Encode(b *testing.B) {
	enc := NewZStdEncoder()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if len(enc.Encode(benchPayload)) == 0 {
			b.Fatal("empty output")
		}
	}
}

func BenchmarkZStdDecoder_Decode(b *testing.B) {
	cdata := NewZStdEncoder().Encode(benchPayload)
	dec := NewZStdDecoder()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := dec.Decode(cdata); err != nil {
			b.Fatal(err)
		}
	}
}
