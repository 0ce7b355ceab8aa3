package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"aptconv/pkg/contract"
	"aptconv/plugins/decoder/rrng"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginTop(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newRangesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ranges <file.rrng>",
		Short: "以表格显示范围文件（含颜色色块）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrapf(err, "open %s", args[0])
			}
			defer f.Close()
			set, err := rrng.ParseContext(cmd.Context(), f)
			if err != nil {
				return errors.Wrapf(err, "parse %s", args[0])
			}
			return renderRanges(cmd.OutOrStdout(), set)
		},
	}
}

// renderRanges 输出离子表与范围表；colour 列为该颜色的背景色块。
func renderRanges(w io.Writer, set *contract.RangeSet) error {
	ions := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("number", "name").
		StyleFunc(styleCell)
	for _, ion := range set.Ions {
		ions.Row(ion.Number, ion.Name)
	}

	ranges := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("number", "lower", "upper", "vol", "comp", "colour", "").
		StyleFunc(styleCell)
	for _, r := range set.Ranges {
		ranges.Row(
			r.Number,
			formatDa(r.Lower),
			formatDa(r.Upper),
			strconv.FormatFloat(r.Vol, 'g', -1, 64),
			r.Comp,
			"#"+r.Colour,
			swatch(r.Colour),
		)
	}

	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n%s\n",
		titleStyle.Render(fmt.Sprintf("Ions (%d)", len(set.Ions))), ions.Render(),
		titleStyle.Render(fmt.Sprintf("Ranges (%d)", len(set.Ranges))), ranges.Render())
	return err
}

func styleCell(row, _ int) lipgloss.Style {
	if row == table.HeaderRow {
		return headerStyle
	}
	return cellStyle
}

func swatch(hex string) string {
	return lipgloss.NewStyle().Background(lipgloss.Color("#" + hex)).Render("    ")
}

func formatDa(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
