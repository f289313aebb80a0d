package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output — вывод CLI: данные в stdout (таблица, карточка или JSON),
// сообщения в stderr.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// Field — строка карточки объекта в Detail.
type Field struct {
	Label string
	Value string
}

// NewOutput создаёт Output поверх stdout/stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(os.Stdout, os.Stderr, jsonMode)
}

// NewOutputTo создаёт Output с заданными writers.
func NewOutputTo(w, errW io.Writer, jsonMode bool) *Output {
	return &Output{jsonMode: jsonMode, w: w, errW: errW}
}

// List выводит коллекцию: jobs, workers, архив, расписания.
// Пустая коллекция в табличном режиме даёт сообщение вместо пустой шапки.
func (o *Output) List(headers []string, rows [][]string, data any) {
	if o.jsonMode {
		o.encode(data)
		return
	}
	if len(rows) == 0 {
		fmt.Fprintln(o.errW, "No results")
		return
	}

	tw := o.tab()
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

// Detail выводит один объект карточкой "LABEL: value".
// Пустые значения показываются как "-".
func (o *Output) Detail(fields []Field, data any) {
	if o.jsonMode {
		o.encode(data)
		return
	}

	tw := o.tab()
	for _, f := range fields {
		v := f.Value
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(tw, "%s:\t%s\n", f.Label, v)
	}
	tw.Flush()
}

// Result выводит data только в JSON-режиме: для команд, чей
// табличный вывод сводится к сообщению Success.
func (o *Output) Result(data any) {
	if o.jsonMode {
		o.encode(data)
	}
}

// Success выводит сообщение в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

func (o *Output) tab() *tabwriter.Writer {
	return tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
}

func (o *Output) encode(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(o.errW, "Error: encode output:", err)
	}
}
