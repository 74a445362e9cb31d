package imap

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/emersion/go-imap"
)

// DefaultBatchSize is how many UIDs a sync fetches per round trip.
const DefaultBatchSize = 50

// MessageRef locates a message on the server.
type MessageRef struct {
	Folder string `json:"folder"`
	UID    uint32 `json:"uid"`
}

func parseUIDSet(set string) (*imap.SeqSet, error) {
	set = strings.TrimSpace(set)
	if set == "" {
		return nil, errors.New("empty uid set")
	}
	seqset, err := imap.ParseSeqSet(set)
	if err != nil {
		return nil, fmt.Errorf("invalid uid set %q: %w", set, err)
	}
	return seqset, nil
}

// GroupByFolder groups refs per folder, keeping the order UIDs were given in.
func GroupByFolder(refs []MessageRef) map[string][]uint32 {
	grouped := make(map[string][]uint32)
	for _, ref := range refs {
		grouped[ref.Folder] = append(grouped[ref.Folder], ref.UID)
	}
	return grouped
}

// UIDBatches sorts uids and splits them into UID sets of at most size
// entries, ready for FetchMessages.
func UIDBatches(uids []uint32, size int) []string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	sorted := append([]uint32(nil), uids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var batches []string
	for start := 0; start < len(sorted); start += size {
		end := start + size
		if end > len(sorted) {
			end = len(sorted)
		}
		seqset := new(imap.SeqSet)
		seqset.AddNum(sorted[start:end]...)
		batches = append(batches, seqset.String())
	}
	return batches
}

// UIDSet renders uids as a UID set string.
func UIDSet(uids ...uint32) string {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	return seqset.String()
}
