package extract

import (
	"reflect"
	"testing"
)

func TestNormalizeQuestionNum(t *testing.T) {
	cases := map[string]string{
		"Q5(i)":       "Q5",
		"Q5 (ii)":     "Q5",
		"5(a)(iv)":    "Q5",
		"Question 5":  "Q5",
		"question 12": "Q12",
		"q.7":         "Q7",
		"7.":          "Q7",
		"3)":          "Q3",
		"No. 4":       "Q4",
		"2b":          "Q2B",
		"":            "",
		"  ":          "",
		"(i)":         "",
		"Q":           "",
	}
	for in, want := range cases {
		if got := NormalizeQuestionNum(in); got != want {
			t.Errorf("NormalizeQuestionNum(%q): want=%q got=%q", in, want, got)
		}
	}
}

func TestMergePages_SubParts(t *testing.T) {
	qs := []ExtractedQuestion{
		{TempID: "a", QuestionNum: "Q5(i)", Content: "part one"},
		{TempID: "b", QuestionNum: "Q5(ii)", Content: "part two", DiagramDescription: "a triangle"},
	}
	got, merged := MergePages(qs)

	if merged != 1 || len(got) != 1 {
		t.Fatalf("want one merged record, got %d (merged=%d)", len(got), merged)
	}
	q := got[0]
	if q.QuestionNum != "Q5" {
		t.Fatalf("questionNum: want=Q5 got=%q", q.QuestionNum)
	}
	if q.Content != "part one\n\npart two" {
		t.Fatalf("content: got=%q", q.Content)
	}
	if q.DiagramDescription != "a triangle" {
		t.Fatalf("diagramDescription: got=%q", q.DiagramDescription)
	}
	if q.TempID != "a" {
		t.Fatalf("first fragment must win scalar fields, got tempId=%q", q.TempID)
	}
}

func TestMergePages_OrderAndUnnumbered(t *testing.T) {
	qs := []ExtractedQuestion{
		{TempID: "10", QuestionNum: "10", Content: "ten"},
		{TempID: "x", Content: "no label"},
		{TempID: "2", QuestionNum: "Q2", Content: "two"},
		{TempID: "y", Content: "another no label"},
		{TempID: "1", QuestionNum: "1", Content: "one"},
	}
	got, merged := MergePages(qs)
	if merged != 0 {
		t.Fatalf("merged: want=0 got=%d", merged)
	}

	var ids []string
	for _, q := range got {
		ids = append(ids, q.TempID)
	}
	want := []string{"x", "y", "1", "2", "10"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("order: want=%v got=%v", want, ids)
	}
}

func TestMergePages_FirstNonEmpty(t *testing.T) {
	qs := []ExtractedQuestion{
		{QuestionNum: "3", Content: "", DiagramImage: ""},
		{QuestionNum: "3", Content: "body", DiagramImage: "data:image/png;base64,AAAA"},
		{QuestionNum: "3", Content: "", DiagramImage: "data:image/png;base64,BBBB"},
	}
	got, _ := MergePages(qs)
	if len(got) != 1 {
		t.Fatalf("want 1 got %d", len(got))
	}
	if got[0].Content != "body" {
		t.Fatalf("content: got=%q", got[0].Content)
	}
	if got[0].DiagramImage != "data:image/png;base64,AAAA" {
		t.Fatalf("diagramImage: got=%q", got[0].DiagramImage)
	}
}

func TestMergePages_Idempotent(t *testing.T) {
	qs := []ExtractedQuestion{
		{QuestionNum: "Q1(a)", Content: "a"},
		{QuestionNum: "Q1(b)", Content: "b"},
		{QuestionNum: "Q2", Content: "c"},
		{Content: "d"},
	}
	once, _ := MergePages(qs)
	twice, merged := MergePages(once)
	if merged != 0 {
		t.Fatalf("second pass merged %d records", merged)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge is not idempotent:\n once=%+v\ntwice=%+v", once, twice)
	}
}
