// Package sqldump reads MediaWiki page content out of a mysqldump file.
package sqldump

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// Value is one field of an INSERT row.
type Value struct {
	Text string
	Null bool
}

// Insert is one INSERT INTO statement.
type Insert struct {
	Table   string
	Columns []string // empty when the statement has no column list
	Rows    [][]Value
}

// SyntaxError reports malformed INSERT syntax.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("sql dump: %s at offset %d", e.Msg, e.Offset)
}

var insertKeyword = []byte("INSERT INTO")

// ParseInserts calls fn for every INSERT INTO statement in data, in order.
// Everything else in the dump is ignored.
func ParseInserts(data []byte, fn func(Insert) error) error {
	p := &parser{data: data}
	for {
		idx := bytes.Index(p.data[p.pos:], insertKeyword)
		if idx < 0 {
			return nil
		}
		p.pos += idx + len(insertKeyword)

		ins, err := p.insert()
		if err != nil {
			return err
		}
		if err := fn(ins); err != nil {
			return err
		}
	}
}

type parser struct {
	data []byte
	pos  int
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) eof() bool { return p.pos >= len(p.data) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.data[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.data[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) insert() (Insert, error) {
	var ins Insert

	p.skipSpace()
	table, err := p.ident()
	if err != nil {
		return ins, err
	}
	ins.Table = table

	p.skipSpace()
	if p.peek() == '(' {
		p.pos++
		for {
			p.skipSpace()
			col, err := p.ident()
			if err != nil {
				return ins, err
			}
			ins.Columns = append(ins.Columns, col)
			p.skipSpace()
			if p.peek() == ',' {
				p.pos++
				continue
			}
			if err := p.expect(')'); err != nil {
				return ins, err
			}
			break
		}
	}

	p.skipSpace()
	if !p.keyword("VALUES") {
		return ins, p.errorf("expected VALUES")
	}

	for {
		row, err := p.row()
		if err != nil {
			return ins, err
		}
		ins.Rows = append(ins.Rows, row)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ';':
			p.pos++
			return ins, nil
		default:
			return ins, p.errorf("expected ',' or ';' after row")
		}
	}
}

func (p *parser) keyword(kw string) bool {
	end := p.pos + len(kw)
	if end > len(p.data) || !strings.EqualFold(string(p.data[p.pos:end]), kw) {
		return false
	}
	p.pos = end
	return true
}

func (p *parser) ident() (string, error) {
	if p.peek() == '`' {
		p.pos++
		end := bytes.IndexByte(p.data[p.pos:], '`')
		if end < 0 {
			return "", p.errorf("unterminated identifier")
		}
		name := string(p.data[p.pos : p.pos+end])
		p.pos += end + 1
		return name, nil
	}

	start := p.pos
	for !p.eof() && isIdentByte(p.data[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return "", p.errorf("expected identifier")
	}
	return string(p.data[start:p.pos]), nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func (p *parser) row() ([]Value, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}

	var row []Value
	for {
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		row = append(row, v)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return row, nil
		default:
			return nil, p.errorf("expected ',' or ')' in row")
		}
	}
}

func (p *parser) value() (Value, error) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == '\'' || c == '"':
		s, err := p.quoted(c)
		return Value{Text: s}, err
	case c == '0' && p.pos+1 < len(p.data) && (p.data[p.pos+1] == 'x' || p.data[p.pos+1] == 'X'):
		return p.hexLiteral()
	case c == '_':
		// Charset introducer such as _binary 'abc'.
		if _, err := p.ident(); err != nil {
			return Value{}, err
		}
		return p.value()
	}

	start := p.pos
	for !p.eof() {
		c := p.data[p.pos]
		if c == ',' || c == ')' {
			break
		}
		p.pos++
	}
	raw := strings.TrimSpace(string(p.data[start:p.pos]))
	if raw == "" {
		return Value{}, p.errorf("empty value")
	}
	if strings.EqualFold(raw, "NULL") {
		return Value{Null: true}, nil
	}
	return Value{Text: raw}, nil
}

func (p *parser) hexLiteral() (Value, error) {
	p.pos += 2
	start := p.pos
	for !p.eof() && isHexByte(p.data[p.pos]) {
		p.pos++
	}
	decoded, err := hex.DecodeString(string(p.data[start:p.pos]))
	if err != nil {
		return Value{}, p.errorf("invalid hex literal: %v", err)
	}
	return Value{Text: string(decoded)}, nil
}

func isHexByte(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

// quoted reads a MySQL string literal: backslash escapes and doubled quotes.
func (p *parser) quoted(q byte) (string, error) {
	p.pos++
	var b strings.Builder
	for {
		if p.eof() {
			return "", p.errorf("unterminated string")
		}
		c := p.data[p.pos]
		p.pos++

		switch {
		case c == '\\':
			if p.eof() {
				return "", p.errorf("unterminated escape")
			}
			b.WriteByte(unescape(p.data[p.pos]))
			p.pos++
		case c == q:
			if p.peek() == q {
				b.WriteByte(q)
				p.pos++
				continue
			}
			return b.String(), nil
		default:
			b.WriteByte(c)
		}
	}
}

func unescape(c byte) byte {
	switch c {
	case '0':
		return 0
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'Z':
		return 0x1a
	default:
		return c
	}
}
