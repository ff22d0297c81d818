package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"jdextract/pkg/contract"
)

// BenchmarkRun 内存 oracle 下的端到端吞吐（不含网络）。
func BenchmarkRun(b *testing.B) {
	for _, rows := range []int{10, 200} {
		b.Run(fmt.Sprintf("rows=%d", rows), func(b *testing.B) {
			var sb strings.Builder
			sb.WriteString("编号,内容\n")
			for i := 0; i < rows; i++ {
				fmt.Fprintf(&sb, "%d,文书%d\n", i, i)
			}
			llm := newScriptLLM(map[string]func(int) (contract.Raw, error){})
			comp, _ := newComponents(b, sb.String(), llm)
			set := baseSettings()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := Run(context.Background(), comp, set, nil); err != nil {
					b.Fatalf("run: %v", err)
				}
			}
		})
	}
}
