package table

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"jdextract/pkg/contract"
)

func fields(kv ...any) *contract.Fields {
	f := contract.NewFields()
	for i := 0; i+1 < len(kv); i += 2 {
		f.Set(kv[i].(string), kv[i+1])
	}
	return f
}

// UT-TBL-01 三行场景：空内容/重试耗尽/成功
func TestBuildScenario(t *testing.T) {
	recs := []contract.Record{
		{Position: 0, Content: "  "},
		{Position: 1, Content: "B"},
		{Position: 2, Content: "C"},
	}
	outs := []contract.Outcome{
		{Position: 2, Fields: fields("x", json.Number("1")), Attempts: 1},
		contract.Failed(0, contract.KindEmptyContent, "content empty", "", 0),
		contract.Failed(1, contract.KindTransport, "retries exhausted: boom", "", 3),
	}
	s, err := Build(recs, outs, "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	wantHeader := []string{DefaultContentHeader, ColError, ColErrorKind, "x"}
	if !reflect.DeepEqual(s.Header, wantHeader) {
		t.Fatalf("header=%v", s.Header)
	}
	if len(s.Rows) != 3 {
		t.Fatalf("行数=%d", len(s.Rows))
	}
	if s.Rows[0][0] != "  " || s.Rows[0][1] != "content empty" || s.Rows[0][3] != nil {
		t.Fatalf("row0=%v", s.Rows[0])
	}
	if s.Rows[1][2] != "transport" || s.Rows[1][3] != nil {
		t.Fatalf("row1=%v", s.Rows[1])
	}
	if s.Rows[2][3] != int64(1) || s.Rows[2][1] != nil {
		t.Fatalf("row2=%v", s.Rows[2])
	}
}

// 列为键的并集，按位置升序首次出现排序
func TestBuildUnionOrder(t *testing.T) {
	recs := []contract.Record{{Position: 0, Content: "a"}, {Position: 1, Content: "b"}}
	outs := []contract.Outcome{
		{Position: 1, Fields: fields("b", "1", "c", "2")},
		{Position: 0, Fields: fields("a", "0", "b", "0")},
	}
	s, err := Build(recs, outs, "正文")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !reflect.DeepEqual(s.Header, []string{"正文", "a", "b", "c"}) {
		t.Fatalf("header=%v", s.Header)
	}
	if !reflect.DeepEqual(s.Rows[0], []any{"a", "0", "0", nil}) {
		t.Fatalf("row0=%v", s.Rows[0])
	}
	if !reflect.DeepEqual(s.Rows[1], []any{"b", nil, "1", "2"}) {
		t.Fatalf("row1=%v", s.Rows[1])
	}
}

func TestBuildNestedAndArrays(t *testing.T) {
	inner := fields("姓名", "张三", "年龄", json.Number("35"))
	out := fields("被告人", inner, "罪名", []any{"盗窃罪", "诈骗罪"}, "金额", json.Number("1.5"), "空", contract.NewFields())
	s, err := Build([]contract.Record{{Position: 0, Content: "doc"}}, []contract.Outcome{{Position: 0, Fields: out}}, "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{DefaultContentHeader, "被告人.姓名", "被告人.年龄", "罪名", "金额", "空"}
	if !reflect.DeepEqual(s.Header, want) {
		t.Fatalf("header=%v", s.Header)
	}
	row := s.Rows[0]
	if row[2] != int64(35) || row[3] != `["盗窃罪","诈骗罪"]` || row[4] != 1.5 || row[5] != nil {
		t.Fatalf("row=%#v", row)
	}
}

func TestBuildCarryAndRaw(t *testing.T) {
	recs := []contract.Record{
		{Position: 0, Content: "a", Columns: []contract.Column{{Name: "案号", Value: "(2024)1"}}},
		{Position: 1, Content: "b", Columns: []contract.Column{{Name: "案号", Value: "(2024)2"}, {Name: "法院", Value: "X"}}},
	}
	outs := []contract.Outcome{
		contract.Failed(0, contract.KindParse, "json decode failed: eof", "{bad", 1),
		{Position: 1, Fields: fields("案号", "dup")},
	}
	s, err := Build(recs, outs, "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{DefaultContentHeader, "案号", "法院", ColError, ColErrorKind, ColRaw, "案号"}
	if !reflect.DeepEqual(s.Header, want) {
		t.Fatalf("header=%v", s.Header)
	}
	if s.Rows[0][1] != "(2024)1" || s.Rows[0][2] != nil || s.Rows[0][5] != "{bad" {
		t.Fatalf("row0=%v", s.Rows[0])
	}
	// 结果键与透传列同名时各占一列
	if s.Rows[1][1] != "(2024)2" || s.Rows[1][6] != "dup" {
		t.Fatalf("row1=%v", s.Rows[1])
	}
}

func TestBuildEmpty(t *testing.T) {
	s, err := Build(nil, nil, "")
	if err != nil || len(s.Rows) != 0 || len(s.Header) != 1 {
		t.Fatalf("空输入异常 %v %+v", err, s)
	}
}

func TestBuildInvariants(t *testing.T) {
	ok := contract.Outcome{Position: 0, Fields: fields("a", "1")}
	cases := []struct {
		name string
		recs []contract.Record
		outs []contract.Outcome
	}{
		{"count", []contract.Record{{Position: 0}}, nil},
		{"shape", []contract.Record{{Position: 0}}, []contract.Outcome{{Position: 0}}},
		{"orphan", []contract.Record{{Position: 0}}, []contract.Outcome{{Position: 9, Fields: fields()}}},
		{"dup-out", []contract.Record{{Position: 0}, {Position: 1}}, []contract.Outcome{ok, ok}},
		{"dup-rec", []contract.Record{{Position: 0}, {Position: 0}}, []contract.Outcome{ok, ok}},
	}
	for _, c := range cases {
		if _, err := Build(c.recs, c.outs, ""); !errors.Is(err, contract.ErrInvariantViolation) {
			t.Fatalf("%s: 期望不变量错误，得到 %v", c.name, err)
		}
	}
}

func TestCell(t *testing.T) {
	cases := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{"s", "s"},
		{true, true},
		{json.Number("7"), int64(7)},
		{json.Number("1e400"), "1e400"},
		{json.Number("2.25"), 2.25},
		{[]any{json.Number("1"), "a"}, `[1,"a"]`},
		{fields("k", "v"), `{"k":"v"}`},
	}
	for _, c := range cases {
		if got := Cell(c.in); !reflect.DeepEqual(got, c.want) {
			t.Fatalf("Cell(%v)=%#v want %#v", c.in, got, c.want)
		}
	}
}
