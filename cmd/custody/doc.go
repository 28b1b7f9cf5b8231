package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"custody-go/internal/model"

	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05"

func formatUnix(ts uint64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(int64(ts), 0).UTC().Format(timeLayout)
}

func printRecord(w io.Writer, i int, r *model.ActionRecord) {
	fmt.Fprintf(w, "#%d  %-15s  %s", i, r.Action, formatUnix(r.Timestamp))
	switch p := r.Payload().(type) {
	case model.CreatedPayload:
		if !p.ContentRef.IsZero() {
			fmt.Fprintf(w, "  content:%s", p.ContentRef.String()[:16])
		}
	case model.UpdatedPayload:
		fmt.Fprintf(w, "  title:%s", r.Title)
	case model.AccessedPayload:
		fmt.Fprintf(w, "  by:%s", p.Actor)
	case model.SharedPayload:
		fmt.Fprintf(w, "  shared:%s until:%s", p.Grantee, formatUnix(p.EndDate))
		if p.Level != "" {
			fmt.Fprintf(w, " level:%s", p.Level)
		}
	}
	fmt.Fprintf(w, "  %s\n", r.BlockHash.String()[:16])
}

// ownerFlag reads the --owner flag every document command carries.
func ownerFlag(cmd *cobra.Command) uint64 {
	owner, _ := cmd.Flags().GetUint64("owner")
	return owner
}

// doc command
var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Record and inspect document custody",
}

var docCreateCmd = &cobra.Command{
	Use:   "create TITLE",
	Short: "Register a new document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		a, err := newApp(cmd.Context(), "CreateDocument", false)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.CreateDocument(cmd.Context(), args[0], ownerFlag(cmd), file)
		if err != nil {
			return fmt.Errorf("creating document: %w", err)
		}
		printRecord(os.Stdout, 0, rec)
		return nil
	},
}

var docAccessCmd = &cobra.Command{
	Use:   "access TITLE",
	Short: "Record a view or download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, _ := cmd.Flags().GetString("actor")
		kind, _ := cmd.Flags().GetString("kind")
		outPath, _ := cmd.Flags().GetString("out")

		a, err := newApp(cmd.Context(), "AccessDocument", false)
		if err != nil {
			return err
		}
		defer a.Close()

		var out io.Writer
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		rec, err := a.AccessDocument(cmd.Context(), args[0], ownerFlag(cmd), actor, kind, out)
		if err != nil {
			return fmt.Errorf("recording access: %w", err)
		}
		fmt.Printf("%s recorded for %s at %s\n", rec.Action, rec.LastAccessedBy, formatUnix(rec.Timestamp))
		return nil
	},
}

var docShareCmd = &cobra.Command{
	Use:   "share TITLE",
	Short: "Grant another user access",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		grantee, _ := cmd.Flags().GetString("grantee")
		level, _ := cmd.Flags().GetString("level")
		forDur, _ := cmd.Flags().GetDuration("for")

		var until time.Time
		if forDur > 0 {
			until = time.Now().Add(forDur)
		}

		a, err := newApp(cmd.Context(), "ShareDocument", false)
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.ShareDocument(cmd.Context(), args[0], ownerFlag(cmd), grantee, level, until)
		for _, rec := range recs {
			fmt.Printf("%s granted to %s until %s\n", rec.Action, rec.SharedUser, formatUnix(rec.SharedEndDate))
		}
		if err != nil {
			return fmt.Errorf("sharing document: %w", err)
		}
		return nil
	},
}

var docUpdateCmd = &cobra.Command{
	Use:   "update TITLE",
	Short: "Rename a document or replace its content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		newTitle, _ := cmd.Flags().GetString("title")
		file, _ := cmd.Flags().GetString("file")
		if newTitle == "" {
			newTitle = args[0]
		}

		a, err := newApp(cmd.Context(), "UpdateDocument", false)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.UpdateDocument(cmd.Context(), args[0], ownerFlag(cmd), newTitle, file)
		if err != nil {
			return fmt.Errorf("updating document: %w", err)
		}
		fmt.Printf("Updated %s\n", rec.Title)
		return nil
	},
}

var docShowCmd = &cobra.Command{
	Use:   "show TITLE",
	Short: "Show a document's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "GetDocument", true)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Document(cmd.Context(), args[0], ownerFlag(cmd))
		if err != nil {
			return err
		}
		fmt.Printf("Title:        %s\n", d.Title)
		fmt.Printf("Owner:        %d\n", d.Owner)
		fmt.Printf("Last action:  %s\n", d.Action)
		fmt.Printf("Last access:  %s by %s\n", formatUnix(d.LastAccessDate), d.LastAccessedBy)
		if d.SharedUser != "" {
			fmt.Printf("Shared with:  %s until %s\n", d.SharedUser, formatUnix(d.SharedEndDate))
		}
		if !d.ContentRef.IsZero() {
			fmt.Printf("Content:      %s\n", d.ContentRef)
		}
		return nil
	},
}

var docHistoryCmd = &cobra.Command{
	Use:   "history TITLE",
	Short: "List a document's action records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "GetHistory", true)
		if err != nil {
			return err
		}
		defer a.Close()

		if cmd.Flags().Changed("index") {
			index, _ := cmd.Flags().GetInt("index")
			rec, err := a.Record(cmd.Context(), args[0], ownerFlag(cmd), index)
			if err != nil {
				return err
			}
			printRecord(os.Stdout, index, rec)
			fmt.Printf("    previous:%s\n    hash:    %s\n    tx:      %s\n", rec.PreviousHash, rec.BlockHash, rec.TxID)
			return nil
		}

		history, err := a.History(cmd.Context(), args[0], ownerFlag(cmd))
		if err != nil {
			return err
		}
		for i := range history {
			printRecord(os.Stdout, i, &history[i])
		}
		return nil
	},
}

var docListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an owner's documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "GetUserDocuments", true)
		if err != nil {
			return err
		}
		defer a.Close()

		docs, err := a.Documents(cmd.Context(), ownerFlag(cmd))
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Println("No documents.")
			return nil
		}
		for _, d := range docs {
			fmt.Printf("%-32s  %-15s  %s\n", d.Title, d.Action, formatUnix(d.Timestamp))
		}
		return nil
	},
}

var docStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize an owner's documents and records",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "GetOwnerStats", true)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.OwnerStats(cmd.Context(), ownerFlag(cmd))
		if err != nil {
			return err
		}
		fmt.Printf("Documents:    %d\n", st.Documents)
		fmt.Printf("Records:      %d\n", st.Records)
		fmt.Printf("Per document: %.2f\n", st.AveragePerDocument())
		for action := model.ActionCreated; action <= model.ActionSharedDownload; action++ {
			if n := st.Actions[action]; n > 0 {
				fmt.Printf("  %-15s %d\n", action, n)
			}
		}
		return nil
	},
}

var docVerifyCmd = &cobra.Command{
	Use:   "verify TITLE",
	Short: "Verify a document's hash chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "VerifyHistory", true)
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := a.Verify(cmd.Context(), args[0], ownerFlag(cmd))
		if err != nil {
			return err
		}
		if !v.Valid {
			return fmt.Errorf("chain broken at record %d: %s", v.BadIndex, v.Reason)
		}
		fmt.Println("Chain valid.")
		return nil
	},
}

var docGrantsCmd = &cobra.Command{
	Use:   "grants TITLE",
	Short: "List who a document is shared with",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Grants", true)
		if err != nil {
			return err
		}
		defer a.Close()

		grants, err := a.Grants(cmd.Context(), args[0], ownerFlag(cmd))
		if err != nil {
			return err
		}
		if len(grants) == 0 {
			fmt.Println("Not shared.")
			return nil
		}
		for _, g := range grants {
			fmt.Printf("%-32s  %-8s", g.Grantee, g.Level())
			if g.View {
				fmt.Printf("  view until:%s", formatUnix(g.ViewUntil))
			}
			if g.Download {
				fmt.Printf("  download until:%s", formatUnix(g.DownloadUntil))
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{
		docCreateCmd, docAccessCmd, docShareCmd, docUpdateCmd,
		docShowCmd, docHistoryCmd, docListCmd, docStatsCmd, docVerifyCmd, docGrantsCmd,
	} {
		c.Flags().Uint64P("owner", "o", 0, "Owner id of the document")
		_ = c.MarkFlagRequired("owner")
		docCmd.AddCommand(c)
	}

	docCreateCmd.Flags().StringP("file", "f", "", "Content to store with the document")

	docAccessCmd.Flags().String("actor", "", "Who is accessing the document")
	docAccessCmd.Flags().String("kind", "view", "view or download")
	docAccessCmd.Flags().String("out", "", "Write the document content to this file")
	_ = docAccessCmd.MarkFlagRequired("actor")

	docShareCmd.Flags().String("grantee", "", "User to share with")
	docShareCmd.Flags().String("level", "view", "view, download or both")
	docShareCmd.Flags().Duration("for", 0, "How long the grant lasts (0 never expires)")
	_ = docShareCmd.MarkFlagRequired("grantee")

	docUpdateCmd.Flags().String("title", "", "New title")
	docUpdateCmd.Flags().StringP("file", "f", "", "Replacement content")

	docHistoryCmd.Flags().IntP("index", "i", 0, "Show only the record at this index")
}
