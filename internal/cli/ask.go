package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/young1lin/agentsearch/internal/dispatcher"
	"github.com/young1lin/agentsearch/internal/models"
	"github.com/young1lin/agentsearch/internal/render"
	"github.com/young1lin/agentsearch/internal/ui"
)

// Output formats accepted by Ask
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Ask dispatches a single query and writes the items in the given format
func Ask(ctx context.Context, d ui.Dispatcher, query, format string, out io.Writer) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return ui.ErrEmptyQuery
	}

	switch format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}

	items, err := d.Dispatch(ctx, query)
	if err != nil {
		msg, code := dispatcher.UserMessage(err)
		if code != 0 {
			return fmt.Errorf("%s (HTTP %d): %w", msg, code, err)
		}
		return fmt.Errorf("%s: %w", msg, err)
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(models.SearchResponse{Items: items})
	case FormatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(map[string][]models.DisplayItem{"items": items}); err != nil {
			return err
		}
		return enc.Close()
	default:
		return writeText(out, items)
	}
}

func writeText(out io.Writer, items []models.DisplayItem) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(out, render.NothingFound)
		return err
	}
	for i, item := range items {
		if _, err := fmt.Fprintf(out, "%d. %s\n", i+1, item.Title); err != nil {
			return err
		}
		if item.MetaText != "" {
			fmt.Fprintf(out, "   %s\n", item.MetaText)
		}
		if item.URL != "" {
			fmt.Fprintf(out, "   %s\n", item.URL)
		}
	}
	return nil
}
