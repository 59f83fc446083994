package otu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptsValidate(t *testing.T) {
	require.NoError(t, DefaultOpts.Validate())

	for _, mutate := range []func(*Opts){
		func(o *Opts) { o.BarcodeMismatch = -1 },
		func(o *Opts) { o.PrimerMismatch = -1 },
		func(o *Opts) { o.TruncLen = -1 },
		func(o *Opts) { o.MaxEE = 0 },
		func(o *Opts) { o.MinLength = -1 },
		func(o *Opts) { o.Identity = 0 },
		func(o *Opts) { o.Identity = 1.1 },
		func(o *Opts) { o.MinUniqueSize = 0 },
		func(o *Opts) { o.Parallelism = -1 },
		func(o *Opts) { o.EngineTimeout = 0 },
	} {
		o := DefaultOpts
		mutate(&o)
		require.Error(t, o.Validate())
	}
}
