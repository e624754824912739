package constants

import "strings"

// ContentType classifies a lesson record.
type ContentType string

const (
	Theory         ContentType = "theory"
	Example        ContentType = "example"
	WorkedSolution ContentType = "worked_solution"
	Summary        ContentType = "summary"
)

const DefaultContentType = Theory

var allContentTypes = []ContentType{Theory, Example, WorkedSolution, Summary}

func ContentTypesAsStringSlice() []string {
	result := make([]string, len(allContentTypes))
	for i, c := range allContentTypes {
		result[i] = string(c)
	}
	return result
}

// CanonicalizeContentType tests membership only; there is no synonym map.
func CanonicalizeContentType(input string) (ContentType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	for _, c := range allContentTypes {
		if normalized == string(c) {
			return c, true
		}
	}
	return DefaultContentType, false
}
