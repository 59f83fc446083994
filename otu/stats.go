package otu

// Stats represents high-level counts accumulated over a pipeline run.
// Every ingested read lands in exactly one of Assigned, Unassigned, or
// one of the discard counters.
type Stats struct {
	// Reads is the total number of ingested reads.
	Reads int
	// Demuxed is the # of reads assigned to a sample.
	Demuxed int
	// NoBarcode is the # of reads with no barcode match within tolerance.
	NoBarcode int
	// AmbiguousBarcode is the # of reads with a barcode tie within
	// tolerance.
	AmbiguousBarcode int
	// NoPrimer is the # of reads discarded for a missing forward primer.
	NoPrimer int
	// TooShort is the # of reads discarded by truncation or minimum
	// length.
	TooShort int
	// LowQuality is the # of reads discarded by the expected-error
	// filter.
	LowQuality int
	// Accepted is the # of reads surviving trimming and filtering.
	Accepted int
	// Uniques is the # of distinct trimmed sequences.
	Uniques int
	// LowAbundanceUniques is the # of uniques dropped by the minimum
	// unique size before clustering.
	LowAbundanceUniques int
	// Chimeras is the # of uniques flagged chimeric by the engine.
	Chimeras int
	// OTUs is the # of clusters in the final table.
	OTUs int
	// Assigned is the # of reads counted in some table cell.
	Assigned int
	// Unassigned is the # of accepted reads whose unique sequence ended
	// up in no OTU.
	Unassigned int
}

// Merge adds the field values of the two Stats objects and creates new
// Stats.
func (s Stats) Merge(o Stats) Stats {
	s.Reads += o.Reads
	s.Demuxed += o.Demuxed
	s.NoBarcode += o.NoBarcode
	s.AmbiguousBarcode += o.AmbiguousBarcode
	s.NoPrimer += o.NoPrimer
	s.TooShort += o.TooShort
	s.LowQuality += o.LowQuality
	s.Accepted += o.Accepted
	s.Uniques += o.Uniques
	s.LowAbundanceUniques += o.LowAbundanceUniques
	s.Chimeras += o.Chimeras
	s.OTUs += o.OTUs
	s.Assigned += o.Assigned
	s.Unassigned += o.Unassigned
	return s
}

// countDiscard bumps the counter matching a discard reason.
func (s *Stats) countDiscard(reason Reason) {
	switch reason {
	case ReasonNoBarcode:
		s.NoBarcode++
	case ReasonAmbiguousBarcode:
		s.AmbiguousBarcode++
	case ReasonNoPrimer:
		s.NoPrimer++
	case ReasonTooShort:
		s.TooShort++
	case ReasonLowQuality:
		s.LowQuality++
	}
}
