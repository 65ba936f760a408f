package vocabulary

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Value is a single tag value from an OBO stanza, with any trailing
// modifiers left unparsed.
type Value struct {
	Value     string
	Modifiers string
}

// Stanza is one bracketed block of an OBO file, e.g. [Term].
type Stanza struct {
	Name string
	Tags map[string][]Value
}

type oboDocument struct {
	Headers map[string][]string
	Stanzas []Stanza
}

// parseOBO reads an OBO file into headers and stanzas. The grammar covered
// is the subset the Human Phenotype Ontology actually uses: tag-value lines,
// quoted values with trailing modifiers, '!' comments outside quotes, and
// backslash line continuations.
func parseOBO(r io.Reader) (*oboDocument, error) {
	lines, err := logicalLines(r)
	if err != nil {
		return nil, err
	}

	doc := &oboDocument{Headers: make(map[string][]string)}

	// Headers run until the first blank line or stanza marker.
	i := 0
	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "" || strings.HasPrefix(line, "[") {
			break
		}
		tag, value, err := parseTagValue(line)
		if err != nil {
			return nil, err
		}
		doc.Headers[tag] = append(doc.Headers[tag], value.Value)
	}

	var stanza *Stanza
	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if stanza != nil {
				doc.Stanzas = append(doc.Stanzas, *stanza)
			}
			stanza = &Stanza{
				Name: strings.TrimSuffix(strings.TrimPrefix(line, "["), "]"),
				Tags: make(map[string][]Value),
			}
			continue
		}
		if stanza == nil {
			return nil, fmt.Errorf("vocabulary: tag line %q before any stanza", line)
		}
		tag, value, err := parseTagValue(line)
		if err != nil {
			return nil, err
		}
		stanza.Tags[tag] = append(stanza.Tags[tag], value)
	}
	if stanza != nil {
		doc.Stanzas = append(doc.Stanzas, *stanza)
	}
	return doc, nil
}

// logicalLines strips comments and merges backslash-continued lines.
// Blank lines are preserved because they terminate the header block.
func logicalLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			lines = append(lines, "")
			continue
		}
		// Comments are stripped per physical line, so an inline comment never
		// leaks into a joined value and a comment ending in '\' is not a
		// continuation.
		line := stripComment(raw)
		if line == "" {
			continue
		}

		if strings.HasSuffix(line, `\`) {
			parts := []string{strings.TrimSpace(strings.TrimSuffix(line, `\`))}
			for scanner.Scan() {
				next := stripComment(strings.TrimSpace(scanner.Text()))
				if next == "" {
					continue
				}
				if strings.HasSuffix(next, `\`) {
					parts = append(parts, strings.TrimSpace(strings.TrimSuffix(next, `\`)))
					continue
				}
				parts = append(parts, next)
				break
			}
			lines = append(lines, strings.Join(parts, " "))
			continue
		}

		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("vocabulary: read obo: %w", err)
	}
	return lines, nil
}

// stripComment removes a trailing '!' comment, honoring double quotes and
// backslash escapes inside them.
func stripComment(line string) string {
	inQuotes := false
	escape := false
	for i, c := range line {
		if escape {
			escape = false
			continue
		}
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == '\\' && inQuotes:
			escape = true
		case c == '!' && !inQuotes:
			return strings.TrimSpace(line[:i])
		}
	}
	return line
}

func parseTagValue(line string) (string, Value, error) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", Value{}, fmt.Errorf("vocabulary: malformed obo line %q", line)
	}
	tag := strings.TrimSpace(line[:idx])
	rest := strings.TrimSpace(line[idx+1:])

	if !strings.HasPrefix(rest, `"`) {
		return tag, Value{Value: rest}, nil
	}

	var b strings.Builder
	escape := false
	for i := 1; i < len(rest); i++ {
		c := rest[i]
		if escape {
			b.WriteByte(c)
			escape = false
			continue
		}
		switch c {
		case '\\':
			escape = true
		case '"':
			return tag, Value{
				Value:     b.String(),
				Modifiers: strings.TrimSpace(rest[i+1:]),
			}, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", Value{}, fmt.Errorf("vocabulary: unterminated string in obo line %q", line)
}

// ontologyTerms converts parsed stanzas to terms with their ancestor
// closures. Obsolete terms are dropped; parent references to unknown terms
// contribute nothing to the closure.
func ontologyTerms(doc *oboDocument) ([]Term, error) {
	parents := make(map[string][]string)
	var terms []Term

	for _, stanza := range doc.Stanzas {
		if stanza.Name != "Term" {
			continue
		}
		ids := stanza.Tags["id"]
		if len(ids) == 0 || ids[0].Value == "" {
			return nil, fmt.Errorf("vocabulary: term stanza without id")
		}
		if hasValue(stanza.Tags["is_obsolete"], "true") {
			continue
		}

		term := Term{
			ID:       ids[0].Value,
			Synonyms: tagValues(stanza.Tags["synonym"]),
			AltIDs:   tagValues(stanza.Tags["alt_id"]),
			Parents:  tagValues(stanza.Tags["is_a"]),
		}
		if names := stanza.Tags["name"]; len(names) > 0 {
			term.Name = names[0].Value
		}
		parents[term.ID] = term.Parents
		terms = append(terms, term)
	}

	for i := range terms {
		terms[i].Closure = ancestorClosure(terms[i].ID, parents)
	}
	return terms, nil
}

// ancestorClosure walks is_a edges and returns the sorted set of known
// ancestor ids, including the term itself. Cycles terminate via the
// visited set.
func ancestorClosure(id string, parents map[string][]string) []string {
	visited := make(map[string]bool)
	stack := []string{id}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		ps, known := parents[n]
		if !known {
			continue
		}
		visited[n] = true
		stack = append(stack, ps...)
	}

	closure := make([]string, 0, len(visited))
	for n := range visited {
		closure = append(closure, n)
	}
	sort.Strings(closure)
	return closure
}

func tagValues(values []Value) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.Value)
	}
	return out
}

func hasValue(values []Value, want string) bool {
	for _, v := range values {
		if v.Value == want {
			return true
		}
	}
	return false
}
