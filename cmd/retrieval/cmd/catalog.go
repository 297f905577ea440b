package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/results"
)

// newCatalogCmd creates the songs or albums command.
func newCatalogCmd(flags *globalFlags, name string) *cobra.Command {
	var (
		page       int
		search     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Print one page of %s", name),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := flags.newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			v, err := svc.Browse(cmd.Context(), models.Catalog(name), page, search)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), v)
			}
			return printView(cmd.OutOrStdout(), v)
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Filter by name")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

type jsonItem struct {
	ID         uint     `json:"id"`
	Name       string   `json:"name"`
	FilePath   string   `json:"filePath,omitempty"`
	AlbumID    uint     `json:"albumId,omitempty"`
	Similarity *float64 `json:"similarity,omitempty"`
}

type jsonView struct {
	Mode       string     `json:"mode"`
	Items      []jsonItem `json:"items"`
	Page       int        `json:"page,omitempty"`
	TotalPages int        `json:"totalPages,omitempty"`
	TotalItems int        `json:"totalItems,omitempty"`
	ElapsedMs  int64      `json:"elapsedMs,omitempty"`
	NoResults  bool       `json:"noResults,omitempty"`
}

func writeJSON(w io.Writer, v results.View) error {
	out := jsonView{
		Mode:      v.Mode.String(),
		Items:     make([]jsonItem, len(v.Items)),
		ElapsedMs: v.Elapsed.Milliseconds(),
		NoResults: v.NoResults,
	}
	if v.Mode == results.ModeBrowse {
		out.Page, out.TotalPages, out.TotalItems = v.Page, v.TotalPages, v.TotalItems
	}
	for i, it := range v.Items {
		out.Items[i] = jsonItem{ID: it.ID, Name: it.Name, FilePath: it.FilePath, AlbumID: it.AlbumID, Similarity: it.Similarity}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// printView writes a view as an aligned table.
func printView(w io.Writer, v results.View) error {
	if v.NoResults {
		_, err := fmt.Fprintln(w, "No similar items found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if v.Mode == results.ModeBrowse {
		fmt.Fprintln(tw, "ID\tNAME\tFILE")
	} else {
		fmt.Fprintln(tw, "#\tSIMILARITY\tNAME\tFILE")
	}
	for i, it := range v.Items {
		if v.Mode == results.ModeBrowse {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", it.ID, it.Name, it.FilePath)
		} else {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, v.Annotation(i), it.Name, it.FilePath)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if v.Mode == results.ModeBrowse {
		_, err := fmt.Fprintf(w, "\nPage %d/%d · %s items\n", v.Page, v.TotalPages, humanize.Comma(int64(v.TotalItems)))
		return err
	}
	if v.Elapsed > 0 {
		_, err := fmt.Fprintf(w, "\nSearch took %s\n", v.Elapsed)
		return err
	}
	return nil
}
