package cluster

import (
	"context"
	"strings"
)

// Fake is an in-process Engine for tests. It records the inputs it was
// given and returns a canned result, or an error. When Assign is set it
// synthesizes a result by calling Assign for each input label.
type Fake struct {
	// Result is returned verbatim when Assign is nil.
	Result Result
	// Err, when non-nil, is returned instead of any result.
	Err error
	// Assign maps an input name (without size annotation) to an OTU ID;
	// returning "" marks the input chimeric.
	Assign func(name string) string

	// Calls records the inputs of each Cluster invocation.
	Calls [][]Input
}

var _ Engine = (*Fake)(nil)

// Cluster implements Engine.
func (f *Fake) Cluster(ctx context.Context, inputs []Input, cfg Config) (Result, error) {
	f.Calls = append(f.Calls, append([]Input(nil), inputs...))
	if f.Err != nil {
		return Result{}, f.Err
	}
	if f.Assign == nil {
		return f.Result, nil
	}
	result := Result{Assignment: map[string]string{}}
	otus := map[string]*OTU{}
	var order []string
	for _, in := range inputs {
		name := in.Label
		if i := strings.IndexByte(name, ';'); i >= 0 {
			name = name[:i]
		}
		id := f.Assign(name)
		if id == "" {
			result.Chimeras = append(result.Chimeras, name)
			continue
		}
		o := otus[id]
		if o == nil {
			o = &OTU{ID: id, RepSeq: in.Seq}
			otus[id] = o
			order = append(order, id)
		}
		o.Members = append(o.Members, name)
		result.Assignment[name] = id
	}
	for _, id := range order {
		result.OTUs = append(result.OTUs, *otus[id])
	}
	return result, nil
}
