package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaiso/Synchronizer/internal/synchronizer"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer
}

// NewOutput создаёт Output поверх stdout.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(os.Stdout, jsonMode)
}

// NewOutputTo создаёт Output, пишущий в w.
func NewOutputTo(w io.Writer, jsonMode bool) *Output {
	return &Output{jsonMode: jsonMode, w: w}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// reportJSON — Report с ошибкой в виде строки.
type reportJSON struct {
	synchronizer.Report
	Error string `json:"error,omitempty"`
}

// Report выводит итог прохода.
func (o *Output) Report(r synchronizer.Report) {
	data := reportJSON{Report: r}
	if r.Err != nil {
		data.Error = r.Err.Error()
	}

	headers := []string{"MODE", "SELECTED", "DISPATCHED", "SKIPPED", "FAILED", "DURATION"}
	rows := [][]string{{
		string(r.Mode),
		strconv.Itoa(r.Selected),
		strconv.Itoa(r.Dispatched),
		strconv.Itoa(r.Skipped),
		strconv.Itoa(r.Failed),
		r.Duration.Round(time.Millisecond).String(),
	}}
	o.Print(headers, rows, data)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
