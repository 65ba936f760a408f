package vocabulary

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// HGNC gene crosswalk columns. Each spec maps one TSV column into either
// the canonical Ensembl id or the alt_id set used for symbol resolution.
type geneColumn struct {
	column    string
	field     string
	prefix    string
	delimiter string
	length    int
}

var geneColumns = []geneColumn{
	{column: "Ensembl ID(supplied by Ensembl)", field: "id", length: 15},
	{column: "Approved Name", field: "name"},
	{column: "Approved Symbol", field: "alt_id"},
	{column: "Previous Symbols", field: "alt_id", delimiter: ", "},
	{column: "Synonyms", field: "alt_id", delimiter: ", "},
	{column: "Entrez Gene ID(supplied by NCBI)", field: "alt_id", prefix: "NCBIGene"},
	{column: "HGNC ID", field: "alt_id"},
}

// parseGenes reads an HGNC custom-download TSV into gene terms keyed by
// Ensembl id. Rows without an Ensembl id are returned with an empty ID and
// left for the caller to drop.
func parseGenes(r io.Reader) ([]Term, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("vocabulary: read gene header: %w", err)
	}
	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		colIndex[strings.TrimSpace(name)] = i
	}
	for _, spec := range geneColumns {
		if _, ok := colIndex[spec.column]; !ok {
			return nil, fmt.Errorf("vocabulary: gene file missing column %q", spec.column)
		}
	}

	var terms []Term
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("vocabulary: read gene row: %w", err)
		}

		var term Term
		for _, spec := range geneColumns {
			idx := colIndex[spec.column]
			if idx >= len(row) {
				continue
			}
			raw := strings.TrimSpace(row[idx])

			values := []string{raw}
			if spec.delimiter != "" {
				values = strings.Split(raw, spec.delimiter)
			}

			for _, value := range values {
				if value == "" {
					continue
				}
				if spec.length > 0 && len(value) != spec.length {
					return nil, fmt.Errorf("vocabulary: %s value %q is not %d characters",
						spec.column, value, spec.length)
				}
				if spec.prefix != "" {
					value = spec.prefix + ":" + value
				}
				switch spec.field {
				case "id":
					term.ID = value
				case "name":
					term.Name = value
				case "alt_id":
					term.AltIDs = append(term.AltIDs, value)
				}
			}
		}
		terms = append(terms, term)
	}
	return terms, nil
}
