// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/netascode/go-confapi/cfgtype"
)

var (
	noColor = color.New()
	keys    = noColor
	header  = noColor
	success = noColor
	failure = noColor
)

func setColor(enabled bool) {
	color.NoColor = !enabled
	if !enabled {
		keys, header, success, failure = noColor, noColor, noColor, noColor
		return
	}
	keys = color.New(color.FgHiCyan)
	header = color.New(color.FgHiBlack)
	success = color.New(color.FgGreen)
	failure = color.New(color.FgRed)
}

// writeTable renders rows under the given column names
func writeTable(w io.Writer, columns []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(columns)
	table.AppendBulk(rows)
	table.Render()
}

func instanceRows(insts []cfgtype.Instance) [][]string {
	rows := make([][]string, 0, len(insts))
	for _, inst := range insts {
		rows = append(rows, []string{keys.Sprint(inst.OID), inst.Value.Type().String(), inst.Value.String()})
	}
	return rows
}
