package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"vidrepo/internal/tree"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// renderTree draws the node hierarchy. Closed folders hide their children
// unless all is set.
func renderTree(t tree.Tree, all bool) string {
	lw := list.NewWriter()
	lw.SetStyle(list.StyleConnectedRounded)
	for _, root := range t.Roots() {
		appendNode(lw, root, all)
	}
	return lw.Render()
}

func appendNode(lw list.Writer, n tree.Node, all bool) {
	lw.AppendItem(nodeLabel(n))
	folder, ok := n.Body.(tree.Folder)
	if !ok || len(folder.Children) == 0 {
		return
	}
	if !n.Open && !all {
		return
	}
	lw.Indent()
	for _, child := range folder.Children {
		appendNode(lw, child, all)
	}
	lw.UnIndent()
}

func nodeLabel(n tree.Node) string {
	label := n.Name
	if n.Kind() == tree.KindFolder {
		label += "/"
		if folder, ok := n.Body.(tree.Folder); ok && !n.Open && len(folder.Children) > 0 {
			label += fmt.Sprintf(" (%d hidden)", len(folder.Children))
		}
	}
	if n.Locked {
		label += " [locked]"
	}
	return fmt.Sprintf("%s  (%s)", label, n.ID)
}
