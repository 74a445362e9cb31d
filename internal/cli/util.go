package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"imapcore/internal/imap"
)

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// readRefs loads a JSON array of {"folder": ..., "uid": ...} objects. "-"
// reads stdin.
func readRefs(path string, stdin io.Reader) ([]imap.MessageRef, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path) //nolint:gosec // path is given by the user
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var refs []imap.MessageRef
	if err := json.NewDecoder(r).Decode(&refs); err != nil {
		return nil, fmt.Errorf("parse message refs: %w", err)
	}
	return refs, nil
}

type uidTarget struct {
	folder string
	uidSet string
}

// targets turns either a UID set in the default folder or a list of refs
// spanning folders into per-folder UID sets of bounded size.
func targets(defaultFolder string, args []string, refs []imap.MessageRef) ([]uidTarget, error) {
	if len(refs) == 0 {
		if len(args) == 0 {
			return nil, fmt.Errorf("give a uid set or --refs")
		}
		return []uidTarget{{folder: defaultFolder, uidSet: args[0]}}, nil
	}

	grouped := imap.GroupByFolder(refs)
	folders := make([]string, 0, len(grouped))
	for name := range grouped {
		folders = append(folders, name)
	}
	sort.Strings(folders)

	var out []uidTarget
	for _, name := range folders {
		for _, batch := range imap.UIDBatches(grouped[name], imap.DefaultBatchSize) {
			out = append(out, uidTarget{folder: name, uidSet: batch})
		}
	}
	return out, nil
}
