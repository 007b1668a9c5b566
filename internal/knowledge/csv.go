package knowledge

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"aquabot/internal/domain"
)

// csvHeader is the canonical column order for knowledge base files.
var csvHeader = []string{"question", "answer", "category", "language", "priority"}

// ImportCSV reads Q&A pairs from r and ingests them through the duplicate
// check. The first row must be a header containing at least question and
// answer columns; category, language and priority are optional.
func (e *Engine) ImportCSV(ctx context.Context, r io.Reader, source string) (added, skipped int, err error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("read csv header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	qIdx, ok := cols["question"]
	if !ok {
		return 0, 0, fmt.Errorf("csv missing required column %q", "question")
	}
	aIdx, ok := cols["answer"]
	if !ok {
		return 0, 0, fmt.Errorf("csv missing required column %q", "answer")
	}

	line := 1
	for {
		record, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return added, skipped, fmt.Errorf("read csv line %d: %w", line+1, readErr)
		}
		line++

		entry := domain.KnowledgeEntry{
			Question: field(record, qIdx),
			Answer:   field(record, aIdx),
			Source:   source,
		}
		if entry.Question == "" || entry.Answer == "" {
			skipped++
			continue
		}
		if i, ok := cols["category"]; ok {
			entry.Category = field(record, i)
		}
		if i, ok := cols["language"]; ok {
			entry.Language = field(record, i)
		}
		if i, ok := cols["priority"]; ok {
			if p, perr := strconv.Atoi(field(record, i)); perr == nil {
				entry.Priority = p
			}
		}

		res, addErr := e.Add(ctx, entry)
		if addErr != nil {
			return added, skipped, fmt.Errorf("import line %d: %w", line, addErr)
		}
		if res.Added {
			added++
		} else {
			skipped++
		}
	}
	return added, skipped, nil
}

// ExportCSV writes all stored entries to w in the canonical column order.
func (e *Engine) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	entries, err := e.store.ListKnowledgeEntries(ctx)
	if err != nil {
		return 0, err
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	for _, entry := range entries {
		row := []string{
			entry.Question,
			entry.Answer,
			entry.Category,
			entry.Language,
			strconv.Itoa(entry.Priority),
		}
		if err := writer.Write(row); err != nil {
			return 0, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return len(entries), writer.Error()
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
