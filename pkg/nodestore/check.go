package nodestore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/i5heu/ouroboros-ocm/pkg/types"
	"github.com/sirupsen/logrus"
)

// Report is the result of Check.
type Report struct {
	Nodes  int
	Chunks int
	// OrphanChunks are stored chunks no binary value refers to.
	OrphanChunks int
	Problems     []string
}

// OK reports whether Check found no broken links.
func (r Report) OK() bool {
	return len(r.Problems) == 0
}

// Check scans every stored node record and verifies that parents, children,
// frozen versions and binary chunks it links to exist. Staged session
// changes are not seen.
func (s *Store) Check() (Report, error) {
	items, err := s.kv.GetItemsWithPrefix([]byte(nodePrefix))
	if err != nil {
		return Report{}, err
	}

	var report Report
	records := make(map[string]*record, len(items))
	for _, item := range items {
		id := strings.TrimPrefix(string(item[0]), nodePrefix)
		r, err := byteToRecord(item[1])
		if err != nil {
			report.Problems = append(report.Problems, fmt.Sprintf("node %s: %v", id, err))
			continue
		}
		records[id] = r
	}
	report.Nodes = len(items)

	if _, ok := records[RootID]; !ok {
		report.Problems = append(report.Problems, "root node is missing")
	}

	chunks := map[types.Hash]bool{}
	for id, r := range records {
		if r.parentID != "" && records[r.parentID] == nil {
			report.Problems = append(report.Problems, fmt.Sprintf("node %s: parent %s is missing", id, r.parentID))
		}
		for _, child := range r.children {
			if records[child] == nil {
				report.Problems = append(report.Problems, fmt.Sprintf("node %s: child %s is missing", id, child))
			}
		}
		for _, v := range r.versions {
			if v.frozenID != "" && records[v.frozenID] == nil {
				report.Problems = append(report.Problems, fmt.Sprintf("node %s: version %s is missing", id, v.name))
			}
		}
		for _, p := range r.properties {
			for _, v := range p.values {
				if v.blob == nil {
					continue
				}
				for _, h := range v.blob.chunks {
					chunks[h] = true
				}
			}
		}
	}

	referenced := 0
	for h := range chunks {
		ok, err := s.kv.Has(chunkKey(h))
		if err != nil {
			return Report{}, err
		}
		if !ok {
			report.Problems = append(report.Problems, fmt.Sprintf("chunk %s is missing", h))
			continue
		}
		referenced++
	}

	report.Chunks, err = s.kv.CountPrefix([]byte(chunkPrefix))
	if err != nil {
		return Report{}, err
	}
	report.OrphanChunks = report.Chunks - referenced
	sort.Strings(report.Problems)

	s.log.WithFields(logrus.Fields{
		"nodes":    report.Nodes,
		"chunks":   report.Chunks,
		"orphans":  report.OrphanChunks,
		"problems": len(report.Problems),
	}).Info("store checked")
	return report, nil
}
