package nl2sql

import (
	"fmt"
	"strings"
)

// OutOfScopeReply is the answer the model is told to give for questions the
// schema cannot answer. It fails validation like any other non-query text.
const OutOfScopeReply = "I'm designed to provide SQL queries for the database."

const summarySystemPrompt = `You are a data analyst.
Give ONE clear, short sentence summarizing the result for a non-technical user.`

func sqlSystemPrompt(schema string) string {
	return fmt.Sprintf(`You are an expert NL2SQL assistant.

RULES:
1. Use ONLY provided tables and columns
2. SQLite syntax only
3. Only SELECT queries
4. No explanation or comments
5. If question is outside schema, say:
   "%s"

Schema:
%s`, OutOfScopeReply, strings.TrimSpace(schema))
}

func summaryUserPrompt(question, table string) string {
	return fmt.Sprintf("Question: %s\n\nResult:\n%s", strings.TrimSpace(question), table)
}
