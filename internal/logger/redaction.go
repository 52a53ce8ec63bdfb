package logger

import (
	"io"
	"regexp"
)

const redactedMarker = "[REDACTED]"

// redactionRule replaces matches of re with repl. Rules that capture a key
// prefix keep it so the redacted line still says what was hidden.
type redactionRule struct {
	re   *regexp.Regexp
	repl []byte
}

func rule(pattern, repl string) redactionRule {
	return redactionRule{re: regexp.MustCompile(pattern), repl: []byte(repl)}
}

// Redactor masks credentials that reach log output. Stored pages and their
// source URLs are logged often, so URL-borne secrets are covered as well as
// API keys.
type Redactor struct {
	rules []redactionRule
}

// NewRedactor returns a redactor with the built-in rules.
func NewRedactor() *Redactor {
	return &Redactor{rules: []redactionRule{
		rule(`sk-[a-zA-Z0-9_-]{20,}`, redactedMarker),
		rule(`(Bearer\s+)[a-zA-Z0-9._-]+`, "${1}"+redactedMarker),
		rule(`(://)[^/\s:@]+:[^/\s@]+@`, "${1}"+redactedMarker+"@"),
		rule(`(?i)([?&](?:api_key|apikey|access_token|token|key|sig|signature)=)[^&\s"]+`, "${1}"+redactedMarker),
		rule(`(?i)((?:password|pwd|secret)["\s:=]+)[^\s"]+`, "${1}"+redactedMarker),
		rule(`(?i)(token["\s:=]+)[a-zA-Z0-9._-]{20,}`, "${1}"+redactedMarker),
		rule(`AKIA[0-9A-Z]{16}`, redactedMarker),
	}}
}

// AddPattern masks every full match of pattern.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, redactionRule{re: re, repl: []byte(redactedMarker)})
	return nil
}

// Redact returns s with every rule applied.
func (r *Redactor) Redact(s string) string {
	return string(r.redact([]byte(s)))
}

func (r *Redactor) redact(p []byte) []byte {
	for _, rl := range r.rules {
		if rl.re.Match(p) {
			p = rl.re.ReplaceAll(p, rl.repl)
		}
	}
	return p
}

// Wrap returns a writer that redacts each write before passing it to w.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{out: w, redactor: r}
}

type redactingWriter struct {
	out      io.Writer
	redactor *Redactor
}

// Write reports len(p) on success even though the redacted line may be
// shorter or longer.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.out.Write(w.redactor.redact(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
