package classifier

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/dustline/internal/types"
)

func TestClassifyProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	amounts := gen.SliceOf(gen.Int64Range(0, 12))

	properties.Property("classification is deterministic", prop.ForAll(
		func(nIn int, values []int64) bool {
			in := inputs(nIn)
			out := outputs(values...)
			p1, m1 := Classify(in, out)
			p2, m2 := Classify(in, out)
			return p1 == p2 && m1 == m2
		},
		gen.IntRange(0, 100),
		amounts,
	))

	properties.Property("mixing flag is set exactly for coinjoin", prop.ForAll(
		func(nIn int, values []int64) bool {
			pattern, mixing := Classify(inputs(nIn), outputs(values...))
			return mixing == (pattern == types.PatternCoinJoin)
		},
		gen.IntRange(0, 100),
		amounts,
	))

	properties.Property("coinjoin wins over any input count", prop.ForAll(
		func(nIn, equal int) bool {
			out := outputs(repeat(3_141_592, equal)...)
			pattern, _ := Classify(inputs(nIn), out)
			return pattern == types.PatternCoinJoin
		},
		gen.IntRange(0, 200),
		gen.IntRange(5, 40),
	))

	properties.Property("fewer than five outputs is never coinjoin", prop.ForAll(
		func(values []int64) bool {
			if len(values) > 4 {
				values = values[:4]
			}
			return !IsCoinJoin(outputs(values...))
		},
		gen.SliceOf(gen.OneConstOf(int64(10_000_000), int64(5_000_000), int64(42)), reflect.TypeOf(int64(0))),
	))

	properties.TestingRun(t)
}
