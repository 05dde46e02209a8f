package sqldump

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func collect(t *testing.T, dump string) []Insert {
	t.Helper()
	var inserts []Insert
	err := ParseInserts([]byte(dump), func(ins Insert) error {
		inserts = append(inserts, ins)
		return nil
	})
	if err != nil {
		t.Fatalf("ParseInserts() error = %v", err)
	}
	return inserts
}

func TestParseInserts_Values(t *testing.T) {
	dump := `INSERT INTO ` + "`t`" + ` VALUES (1,'it\'s','a,b','(paren)',NULL,0x414243,_binary 'bin','say ''hi''',"dq",-1.5,'line\nbreak');`

	inserts := collect(t, dump)
	if len(inserts) != 1 {
		t.Fatalf("got %d inserts, want 1", len(inserts))
	}

	want := []Value{
		{Text: "1"},
		{Text: "it's"},
		{Text: "a,b"},
		{Text: "(paren)"},
		{Null: true},
		{Text: "ABC"},
		{Text: "bin"},
		{Text: "say 'hi'"},
		{Text: "dq"},
		{Text: "-1.5"},
		{Text: "line\nbreak"},
	}
	if diff := cmp.Diff(want, inserts[0].Rows[0]); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestParseInserts_Statements(t *testing.T) {
	dump := "-- MySQL dump 10.13\n" +
		"DROP TABLE IF EXISTS `page`;\n" +
		"/*!40000 ALTER TABLE `page` DISABLE KEYS */;\n" +
		"INSERT INTO `page` VALUES (1,0,'Fishing'),\n(2,0,'Mining');\n" +
		"INSERT INTO `text` (`old_id`, `old_text`) VALUES (10,'x');\n" +
		"UNLOCK TABLES;\n"

	got := collect(t, dump)
	want := []Insert{
		{Table: "page", Rows: [][]Value{
			{{Text: "1"}, {Text: "0"}, {Text: "Fishing"}},
			{{Text: "2"}, {Text: "0"}, {Text: "Mining"}},
		}},
		{Table: "text", Columns: []string{"old_id", "old_text"}, Rows: [][]Value{
			{{Text: "10"}, {Text: "x"}},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("inserts mismatch (-want +got):\n%s", diff)
	}
}

func TestParseInserts_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		dump string
	}{
		{name: "unterminated string", dump: "INSERT INTO `page` VALUES (1,'abc"},
		{name: "missing values", dump: "INSERT INTO `page` SELECT 1;"},
		{name: "unterminated row", dump: "INSERT INTO `page` VALUES (1,2"},
		{name: "bad hex", dump: "INSERT INTO `page` VALUES (0x4G);"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseInserts([]byte(tt.dump), func(Insert) error { return nil })
			var syntaxErr *SyntaxError
			if !errors.As(err, &syntaxErr) {
				t.Errorf("error = %v, want *SyntaxError", err)
			}
		})
	}
}

func TestParseInserts_CallbackError(t *testing.T) {
	stop := errors.New("stop")
	err := ParseInserts([]byte("INSERT INTO `a` VALUES (1);"), func(Insert) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("error = %v, want %v", err, stop)
	}
}
