package fastq

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const valid = `@r1 sample=a
ACGT
+
IIII
@r2
TTGGCC
+r2
IIIIII
`

func TestScanner(t *testing.T) {
	sc := NewScanner(strings.NewReader(valid))
	var reads []Read
	var r Read
	for sc.Scan(&r) {
		reads = append(reads, r)
	}
	require.NoError(t, sc.Err())
	require.Len(t, reads, 2)
	assert.Equal(t, Read{ID: "r1 sample=a", Seq: "ACGT", Qual: "IIII"}, reads[0])
	assert.Equal(t, Read{ID: "r2", Seq: "TTGGCC", Qual: "IIIIII"}, reads[1])
	assert.Equal(t, 2, sc.N())
}

func TestScannerErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"missing at", "r1\nACGT\n+\nIIII\n", ErrInvalid},
		{"missing plus", "@r1\nACGT\nIIII\nIIII\n", ErrInvalid},
		{"qual length", "@r1\nACGT\n+\nIII\n", ErrInvalid},
		{"truncated", "@r1\nACGT\n+\n", ErrShort},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sc := NewScanner(strings.NewReader(test.in))
			var r Read
			assert.False(t, sc.Scan(&r))
			require.Error(t, sc.Err())
			assert.True(t, strings.Contains(sc.Err().Error(), test.want.Error()))
		})
	}
}

func TestWriterRoundTrip(t *testing.T) {
	var sb strings.Builder
	w := NewWriter(&sb)
	in := []Read{
		{ID: "r1", Seq: "ACGT", Qual: "IIII"},
		{ID: "r2", Seq: "GG", Qual: "!!"},
	}
	for i := range in {
		require.NoError(t, w.Write(&in[i]))
	}
	sc := NewScanner(strings.NewReader(sb.String()))
	var out []Read
	var r Read
	for sc.Scan(&r) {
		out = append(out, r)
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, in, out)
}
