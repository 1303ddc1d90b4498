package analyst

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/maerai/maer/internal/query"
	"github.com/maerai/maer/internal/session"
)

var (
	ErrEmptyStatement      = errors.New("sql is required")
	ErrStatementNotAllowed = errors.New("only read-only statements are allowed")
)

var readOnlyPrefixes = []string{"select", "with", "show", "describe", "summarize", "explain", "from"}

// RunManualQuery executes caller-written SQL on the session's connection. It
// does not touch conversation memory.
func (s *Service) RunManualQuery(ctx context.Context, sess *session.Session, statement string) (query.Result, error) {
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return query.Result{}, ErrEmptyStatement
	}
	if s.opts.ReadOnlyManual && !IsReadOnly(statement) {
		return query.Result{}, ErrStatementNotAllowed
	}

	var result query.Result
	err := sess.Run(func(engine query.Engine) error {
		var err error
		result, err = s.execute(ctx, engine, "manual", statement)
		return err
	})
	return result, err
}

// IsReadOnly accepts a single statement starting with a read-only keyword.
// Any semicolon before the trailing terminator rejects the statement, which
// also rejects literals containing one. It only inspects the statement's
// shape; file and network reads are refused by the engine itself once the
// dataset is loaded.
func IsReadOnly(statement string) bool {
	normalized := strings.ToLower(strings.TrimSpace(statement))
	for strings.HasSuffix(normalized, ";") {
		normalized = strings.TrimSpace(strings.TrimSuffix(normalized, ";"))
	}
	if normalized == "" || strings.Contains(normalized, ";") {
		return false
	}
	for _, prefix := range readOnlyPrefixes {
		rest, ok := strings.CutPrefix(normalized, prefix)
		if !ok {
			continue
		}
		if rest == "" {
			return true
		}
		next, _ := utf8.DecodeRuneInString(rest)
		if !unicode.IsLetter(next) && !unicode.IsDigit(next) && next != '_' {
			return true
		}
	}
	return false
}
