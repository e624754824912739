package server

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/exam-importer/internal/async"
	"github.com/joseph-ayodele/exam-importer/internal/common"
	"github.com/joseph-ayodele/exam-importer/internal/repository"
)

func stringField(in *structpb.Struct, name string) string {
	return strings.TrimSpace(in.GetFields()[name].GetStringValue())
}

func metadataField(in *structpb.Struct) map[string]any {
	if s := in.GetFields()["metadata"].GetStructValue(); s != nil {
		return s.AsMap()
	}
	return nil
}

func decodePDF(in *structpb.Struct) ([]byte, error) {
	raw := stringField(in, "pdf_base64")
	v := common.NewValidator().Field("pdf_base64", raw, common.Required)
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, common.InvalidArgumentErrorf("pdf_base64 is not valid base64: %v", err)
	}
	return data, nil
}

// toStruct renders v through its JSON form so responses use the same field
// names as the CLI output.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func ledgerRowMap(row *repository.ExtractJob) map[string]any {
	m := map[string]any{
		"job_id":       row.ID,
		"mode":         string(row.Mode),
		"status":       string(row.Status),
		"started_at":   row.StartedAt.UTC().Format(time.RFC3339Nano),
		"byte_size":    row.ByteSize,
		"page_count":   row.PageCount,
		"units_total":  row.UnitsTotal,
		"units_failed": row.UnitsFailed,
		"questions":    row.Questions,
		"lessons":      row.Lessons,
		"needs_review": row.NeedsReview,
	}
	if row.FinishedAt != nil {
		m["finished_at"] = row.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	if row.ErrorMessage != "" {
		m["error"] = row.ErrorMessage
	}
	if row.Metadata != nil {
		m["metadata"] = row.Metadata
	}
	if row.Result != nil {
		m["result"] = row.Result
	}
	return m
}

func queueStateMap(st async.JobState) map[string]any {
	m := map[string]any{
		"job_id":     st.ID,
		"mode":       string(st.Mode),
		"status":     string(st.Status),
		"started_at": st.SubmittedAt.UTC().Format(time.RFC3339Nano),
	}
	if !st.FinishedAt.IsZero() {
		m["finished_at"] = st.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	if st.Err != "" {
		m["error"] = st.Err
	}
	if st.Result != nil {
		m["questions"] = len(st.Result.Questions)
		m["lessons"] = len(st.Result.Lessons)
		m["needs_review"] = st.Result.NeedsReviewCount()
		m["result"] = st.Result
	}
	return m
}
