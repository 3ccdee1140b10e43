package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanuensis/internal/errors"
	"github.com/Aman-CERP/amanuensis/internal/output"
	"github.com/Aman-CERP/amanuensis/pkg/ops"
)

func newAddCmd(g *globals) *cobra.Command {
	var id string
	var fields []string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add one document",
		Long: `Add one document to the target index.

Field values that parse as numbers or booleans are indexed as such;
everything else is text.

Examples:
  amanuensis add --id sku-1 --field title="Blue widget" --field price=9.5
  amanuensis add -i orders --id o-17 --field status=open`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := parseDocument(id, fields)
			if err != nil {
				return err
			}

			b, release, err := g.openBackend()
			if err != nil {
				return err
			}
			defer release()

			w, err := g.newWriter(b)
			if err != nil {
				return err
			}
			if err := w.NewSession().AddDocument(cmd.Context(), doc); err != nil {
				return err
			}

			output.New(cmd.OutOrStdout()).Successf("Added %s to %s", doc.ID, w.IndexName())
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Document ID (required)")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "Field as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func newDeleteCmd(g *globals) *cobra.Command {
	var terms []string
	var queries []string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete documents by term or query",
		Long: `Delete every document matching a term or a query string.

All given deletions are sent as one batch.

Examples:
  amanuensis delete --term color:red
  amanuensis delete --query "+status:closed -priority:high"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(terms) == 0 && len(queries) == 0 {
				return amerrors.ValidationError("nothing to delete", nil).
					WithSuggestion("Pass --term field:text or --query \"...\"")
			}
			parsedTerms, err := parseTerms(terms)
			if err != nil {
				return err
			}
			parsedQueries := make([]ops.Query, len(queries))
			for i, q := range queries {
				parsedQueries[i] = ops.Query{Text: q}
			}

			b, release, err := g.openBackend()
			if err != nil {
				return err
			}
			defer release()

			w, err := g.newWriter(b)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s := w.NewSession()
			if err := s.StartBatch(); err != nil {
				return err
			}
			if err := s.DeleteByTerms(ctx, parsedTerms...); err != nil {
				return err
			}
			if err := s.DeleteByQueries(ctx, parsedQueries...); err != nil {
				return err
			}
			if err := s.EndBatch(ctx); err != nil {
				return err
			}

			output.New(cmd.OutOrStdout()).Successf("Sent %d deletion(s) to %s", len(parsedTerms)+len(parsedQueries), w.IndexName())
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&terms, "term", nil, "Delete documents whose field contains text, as field:text (repeatable)")
	cmd.Flags().StringArrayVar(&queries, "query", nil, "Delete documents matching a query string (repeatable)")

	return cmd
}

func newBatchCmd(g *globals) *cobra.Command {
	var cancel bool

	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Apply a file of operations as one batch",
		Long: `Read operations from FILE (or - for stdin), one JSON object per line,
and apply them as a single batch.

Each line is one of:
  {"kind":"add","document":{"id":"1","fields":{"title":"Widget"}}}
  {"kind":"delete_by_query","query":{"text":"color:red"}}
  {"kind":"delete_by_term","term":{"field":"color","text":"red"}}

Blank lines and lines starting with # are skipped. With --cancel the batch is
built and then discarded, which checks the file without writing anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			operations, err := readOperations(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			b, release, err := g.openBackend()
			if err != nil {
				return err
			}
			defer release()

			w, err := g.newWriter(b)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			s := w.NewSession()
			if err := s.StartBatch(); err != nil {
				return err
			}
			for i, op := range operations {
				if err := queue(cmd, s, op); err != nil {
					_ = s.CancelBatch()
					return err
				}
				out.Progress(i+1, len(operations), "queued")
			}

			if cancel {
				if err := s.CancelBatch(); err != nil {
					return err
				}
				out.Warningf("Discarded %d operation(s); nothing was written", len(operations))
				return nil
			}

			if err := s.EndBatch(cmd.Context()); err != nil {
				return err
			}
			out.Successf("Applied %d operation(s) to %s as one batch", len(operations), w.IndexName())
			return nil
		},
	}

	cmd.Flags().BoolVar(&cancel, "cancel", false, "Build the batch, then cancel it instead of applying")

	return cmd
}

// batchSession is the part of a session used to queue operations.
type batchSession interface {
	AddDocument(ctx context.Context, doc ops.Document) error
	DeleteByQueries(ctx context.Context, queries ...ops.Query) error
	DeleteByTerms(ctx context.Context, terms ...ops.Term) error
}

// queue appends op to the open batch of s.
func queue(cmd *cobra.Command, s batchSession, op ops.Operation) error {
	ctx := cmd.Context()
	switch op.Kind() {
	case ops.KindAdd:
		doc, _ := op.Document()
		return s.AddDocument(ctx, doc)
	case ops.KindDeleteByQuery:
		q, _ := op.Query()
		return s.DeleteByQueries(ctx, q)
	case ops.KindDeleteByTerm:
		t, _ := op.Term()
		return s.DeleteByTerms(ctx, t)
	default:
		return amerrors.ValidationError(fmt.Sprintf("unsupported operation kind %s", op.Kind()), nil)
	}
}

// readOperations parses JSON-lines operations from path, or from stdin
// when path is "-".
func readOperations(stdin io.Reader, path string) ([]ops.Operation, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, amerrors.ValidationError(fmt.Sprintf("cannot open %s", path), err)
		}
		defer f.Close()
		r = f
	}

	var operations []ops.Operation
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var op ops.Operation
		if err := json.Unmarshal([]byte(text), &op); err != nil {
			return nil, amerrors.ValidationError(fmt.Sprintf("line %d: invalid operation", line), err)
		}
		operations = append(operations, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, amerrors.ValidationError(fmt.Sprintf("failed to read %s", path), err)
	}
	return operations, nil
}

// parseDocument builds a document from --id and key=value fields.
func parseDocument(id string, fields []string) (ops.Document, error) {
	if strings.TrimSpace(id) == "" {
		return ops.Document{}, amerrors.ValidationError("--id must not be empty", nil)
	}
	doc := ops.Document{ID: id, Fields: make(map[string]any, len(fields))}
	for _, f := range fields {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return ops.Document{}, amerrors.ValidationError(fmt.Sprintf("invalid field %q, want key=value", f), nil)
		}
		doc.Fields[key] = parseValue(value)
	}
	return doc, nil
}

// parseValue keeps numbers and booleans typed.
func parseValue(s string) any {
	if s == "true" || s == "false" {
		return s == "true"
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

// parseTerms parses field:text pairs.
func parseTerms(raw []string) ([]ops.Term, error) {
	terms := make([]ops.Term, 0, len(raw))
	for _, r := range raw {
		field, text, ok := strings.Cut(r, ":")
		if !ok || field == "" || text == "" {
			return nil, amerrors.ValidationError(fmt.Sprintf("invalid term %q, want field:text", r), nil)
		}
		terms = append(terms, ops.Term{Field: field, Text: text})
	}
	return terms, nil
}
