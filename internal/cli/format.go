package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"imapcore/internal/folder"
	"imapcore/internal/imap"
	"imapcore/internal/message"

	"github.com/dustin/go-humanize"
)

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatDate(unix int64) string {
	if unix == 0 {
		return ""
	}
	return time.Unix(unix, 0).Local().Format("2006-01-02 15:04")
}

func sender(msg *message.Message) string {
	if msg.FromName != "" {
		return msg.FromName
	}
	return msg.FromAddress
}

func printMessages(out io.Writer, messages []*message.Message) {
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "UID\tDATE\tFLAGS\tSIZE\tFROM\tSUBJECT")
	for _, msg := range messages {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			msg.UID, formatDate(msg.Date), stateFlags(msg), humanize.Bytes(uint64(msg.RawSize)), sender(msg), msg.Subject)
	}
	_ = tw.Flush()
}

// stateFlags renders read, starred, draft and attachment state in fixed
// columns, mutt style.
func stateFlags(msg *message.Message) string {
	flags := []byte("----")
	if !msg.IsRead {
		flags[0] = 'N'
	}
	if msg.IsStarred {
		flags[1] = '*'
	}
	if msg.IsDraft {
		flags[2] = 'D'
	}
	if len(msg.Attachments) > 0 {
		flags[3] = 'A'
	}
	return string(flags)
}

type folderRow struct {
	imap.Folder
	Label    folder.Mapping `json:"label"`
	Syncable bool           `json:"syncable"`
}

func folderRows(folders []imap.Folder) []folderRow {
	rows := make([]folderRow, 0, len(folders))
	for _, f := range folders {
		rows = append(rows, folderRow{
			Folder:   f,
			Label:    folder.Label(f.Path, f.Name, f.SpecialUse),
			Syncable: folder.Syncable(f.Path),
		})
	}
	return rows
}

func printFolders(out io.Writer, rows []folderRow) {
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "FOLDER\tSPECIAL\tLABEL\tMESSAGES\tUNSEEN\tSYNC")
	for _, row := range rows {
		sync := "yes"
		if !row.Syncable {
			sync = "no"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Path, row.SpecialUse, row.Label.ID,
			humanize.Comma(int64(row.Exists)), humanize.Comma(int64(row.Unseen)), sync)
	}
	_ = tw.Flush()
}

func printMessage(out io.Writer, msg *message.Message, labels []string) {
	fmt.Fprintf(out, "UID: %d\n", msg.UID)
	header := func(name, value string) {
		if value != "" {
			fmt.Fprintf(out, "%s: %s\n", name, value)
		}
	}
	from := msg.FromAddress
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromAddress)
	}
	header("From", from)
	header("To", msg.To)
	header("Cc", msg.Cc)
	header("Reply-To", msg.ReplyTo)
	header("Subject", msg.Subject)
	header("Date", formatDate(msg.Date))
	header("Labels", strings.Join(labels, ", "))
	if msg.Auth != nil {
		fmt.Fprintf(out, "Auth: %s (spf=%s dkim=%s dmarc=%s)\n",
			msg.Auth.Aggregate, msg.Auth.SPF.Result, msg.Auth.DKIM.Result, msg.Auth.DMARC.Result)
	}
	for _, att := range msg.Attachments {
		fmt.Fprintf(out, "Attachment %s: %s (%s, %s)\n", att.PartID, att.Filename, att.MIMEType, humanize.Bytes(uint64(att.Size)))
	}
	fmt.Fprintln(out)

	body := msg.BodyText
	if body == "" {
		body = msg.BodyHTML
	}
	fmt.Fprintln(out, body)
}

func printAttachments(out io.Writer, attachments []message.Attachment) {
	if len(attachments) == 0 {
		fmt.Fprintln(out, "No attachments found.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILENAME\tTYPE\tSIZE\tINLINE")
	for _, att := range attachments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", att.PartID, att.Filename, att.MIMEType, humanize.Bytes(uint64(att.Size)), att.IsInline)
	}
	_ = tw.Flush()
}
