package cluster

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/amplicon/encoding/fasta"
	"github.com/pkg/errors"
)

// uparseRow is one parsed line of a UPARSE tabbed output file. The format
// is: query label, classification, extra fields..., target label ("*" when
// there is none). Classifications of interest are "otu" (query founds a
// new cluster), "match"/"perfect" (query joins the target's cluster) and
// "chimera".
type uparseRow struct {
	query          string // without size annotation
	classification string
	target         string // without size annotation, "" when absent
}

func parseUparseRow(line string) (uparseRow, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 2 {
		return uparseRow{}, errors.Errorf("uparse row has %d fields, want >= 2: %q", len(fields), line)
	}
	query, _, err := fasta.ParseSizeLabel(fields[0])
	if err != nil {
		return uparseRow{}, err
	}
	row := uparseRow{query: query, classification: fields[1]}
	if last := fields[len(fields)-1]; len(fields) > 2 && last != "*" {
		if row.target, _, err = fasta.ParseSizeLabel(last); err != nil {
			return uparseRow{}, err
		}
	}
	return row, nil
}

// parseResult assembles a Result from the engine's UPARSE tabbed output
// and its representative FASTA. Representatives are normalized to
// upper-case and stripped of non-GATC padding. OTUs left without members
// (all members chimeric, filtered) are dropped.
func parseResult(uparse io.Reader, reps []fasta.Record, cfg Config) (Result, error) {
	result := Result{Assignment: map[string]string{}}

	// Centroid query name -> OTU ID, in order of "otu" rows. The engine
	// relabels centroids OTU_1, OTU_2, ... in discovery order.
	var (
		centroidOTU = map[string]string{}
		members     = map[string][]string{}
		otuOrder    []string
	)
	resolve := func(row uparseRow) (string, bool) {
		if row.target == "" {
			return "", false
		}
		if id, ok := centroidOTU[row.target]; ok {
			return id, true
		}
		// The engine may name the relabeled OTU directly.
		if _, ok := members[row.target]; ok {
			return row.target, true
		}
		return "", false
	}

	scanner := bufio.NewScanner(uparse)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		row, err := parseUparseRow(line)
		if err != nil {
			return Result{}, err
		}
		switch row.classification {
		case "otu":
			otuID := "OTU_" + strconv.Itoa(len(otuOrder)+1)
			centroidOTU[row.query] = otuID
			members[otuID] = append(members[otuID], row.query)
			otuOrder = append(otuOrder, otuID)
			result.Assignment[row.query] = otuID
		case "match", "perfect":
			otuID, ok := resolve(row)
			if !ok {
				return Result{}, errors.Errorf("uparse match %q names unknown target %q", row.query, row.target)
			}
			members[otuID] = append(members[otuID], row.query)
			result.Assignment[row.query] = otuID
		case "chimera":
			if !cfg.ChimeraFilter {
				if otuID, ok := resolve(row); ok {
					members[otuID] = append(members[otuID], row.query)
					result.Assignment[row.query] = otuID
					continue
				}
			}
			result.Chimeras = append(result.Chimeras, row.query)
		default:
			// "noisy" and other classifications: excluded from all clusters,
			// surfaced as unassigned downstream.
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, errors.Wrap(err, "reading uparse output")
	}

	repSeq := map[string]string{}
	for _, rec := range reps {
		name, _, err := fasta.ParseSizeLabel(rec.Label)
		if err != nil {
			return Result{}, err
		}
		repSeq[name] = cleanRep(rec.Seq)
	}
	for _, otuID := range otuOrder {
		m := members[otuID]
		if len(m) == 0 {
			continue
		}
		rep, ok := repSeq[otuID]
		if !ok {
			return Result{}, errors.Errorf("no representative sequence for %s", otuID)
		}
		result.OTUs = append(result.OTUs, OTU{ID: otuID, RepSeq: rep, Members: m})
	}
	return result, nil
}

// cleanRep upper-cases a representative sequence and strips engine
// padding (anything outside GATC).
func cleanRep(seq string) string {
	var sb strings.Builder
	sb.Grow(len(seq))
	for i := 0; i < len(seq); i++ {
		c := seq[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		switch c {
		case 'G', 'A', 'T', 'C':
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
