package search

import (
	"fmt"
	"testing"
)

func BenchmarkFuse(b *testing.B) {
	kw := make(map[string]float64)
	sem := make(map[string]float64)
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("doc:1_%05d", i)
		if i%2 == 0 {
			kw[id] = float64(i) / 200
		}
		sem[id] = float64(200-i) / 200
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Fuse(kw, sem, 0.3, 0.7)
	}
}
