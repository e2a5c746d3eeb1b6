package judge

import (
	"fmt"
	"strings"

	"github.com/noah-isme/mockmate-judge/pkg/executor"
)

func writePass(b *strings.Builder, number int) {
	fmt.Fprintf(b, "✓ Test case %d passed\n", number)
}

func writeFailure(b *strings.Builder, number int, hidden bool, run executor.Result, expected, got string) {
	fmt.Fprintf(b, "✗ Test case %d failed\n", number)
	switch {
	case !run.Success:
		fmt.Fprintf(b, "Error: %s\n", run.Error)
	case hidden:
		b.WriteString("Output did not match (hidden test case)\n")
	default:
		fmt.Fprintf(b, "Expected: %s\n", expected)
		fmt.Fprintf(b, "Got: %s\n", got)
	}
}

func writeSkipped(b *strings.Builder, number int) {
	fmt.Fprintf(b, "✗ Test case %d skipped\n", number)
}

// compileFailureFeedback reports the diagnostics once, then one failed line per test case.
func compileFailureFeedback(diagnostics string, total int) string {
	var b strings.Builder
	b.WriteString("✗ Compilation failed\n")
	b.WriteString(diagnostics)
	b.WriteString("\n")
	for n := 1; n <= total; n++ {
		fmt.Fprintf(&b, "✗ Test case %d failed\n", n)
	}
	return b.String()
}
