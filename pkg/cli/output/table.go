package output

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Table 简单表格输出
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable 创建表格
func NewTable(headers []string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	return &Table{
		headers: headers,
		rows:    make([][]string, 0),
		widths:  widths,
	}
}

// AddRow 添加行
func (t *Table) AddRow(row []string) {
	for i, cell := range row {
		if n := utf8.RuneCountInString(stripANSI(cell)); i < len(t.widths) && n > t.widths[i] {
			t.widths[i] = n
		}
	}
	t.rows = append(t.rows, row)
}

// Render 渲染表格
func (t *Table) Render() {
	headerColor := color.New(color.FgCyan, color.Bold)
	for i, h := range t.headers {
		headerColor.Fprint(Stdout, pad(h, t.widths[i]))
	}
	fmt.Fprintln(Stdout)

	for i := range t.headers {
		fmt.Fprint(Stdout, strings.Repeat("-", t.widths[i])+"  ")
	}
	fmt.Fprintln(Stdout)

	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(t.widths) {
				fmt.Fprint(Stdout, pad(cell, t.widths[i]))
			}
		}
		fmt.Fprintln(Stdout)
	}
}

// pad 按可见字符数右侧补齐
func pad(cell string, width int) string {
	n := utf8.RuneCountInString(stripANSI(cell))
	if n >= width {
		return cell + "  "
	}
	return cell + strings.Repeat(" ", width-n) + "  "
}

// stripANSI 去掉颜色转义序列
func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape && r == 'm':
			inEscape = false
		case !inEscape:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Status 按状态着色
func Status(status string) string {
	switch strings.ToLower(status) {
	case "published", "success", "approved":
		return color.GreenString(status)
	case "suspended", "pending", "running", "resumed":
		return color.YellowString(status)
	case "failed", "failure", "blocked", "rejected", "revision_exhausted":
		return color.RedString(status)
	default:
		return status
	}
}

// Truncate 截断过长文本
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}
