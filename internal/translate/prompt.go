package translate

import (
	"strings"

	"github.com/nlbridge/nlbridge/internal/backend"
)

// Builder renders a question plus backend dialect guidance into the prompt
// sent to the completion service. Build is a pure function of its inputs;
// identical inputs always produce identical prompt text.
type Builder struct{}

func NewBuilder() Builder {
	return Builder{}
}

func (Builder) Build(question string, kind backend.Kind, schemaContext string) string {
	var b strings.Builder

	b.WriteString("You convert natural language data requests into a single query for the target data store.\n")
	b.WriteString("Target: ")
	b.WriteString(dialectGuidance(kind))
	b.WriteString("\n")

	if strings.TrimSpace(schemaContext) != "" {
		b.WriteString("\nSchema context:\n")
		b.WriteString(strings.TrimSpace(schemaContext))
		b.WriteString("\n")
	}

	b.WriteString("\nUser request:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Use only tables and columns named in the schema context when one is given.\n")
	b.WriteString("- Output exactly one query. No markdown, no explanation, no commentary.\n")

	return b.String()
}

func dialectGuidance(kind backend.Kind) string {
	switch kind {
	case backend.KindPostgres:
		return "PostgreSQL. Write standard PostgreSQL SQL."
	case backend.KindMySQL:
		return "MySQL. Write MySQL-dialect SQL; use backticks only when an identifier requires quoting."
	case backend.KindSQLite:
		return "SQLite. Write SQLite-compatible SQL; avoid server-only functions."
	case backend.KindCassandra:
		return "Cassandra. Write CQL, not SQL: no joins, no subqueries, filter on partition key columns and add ALLOW FILTERING only when unavoidable."
	case backend.KindLakehouse:
		return "DuckDB. Write DuckDB SQL; the dialect is PostgreSQL-like."
	default:
		return "an ANSI SQL database. Write portable ANSI SQL."
	}
}
